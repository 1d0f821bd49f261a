package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/games"
)

const (
	defaultMaxRetries = 5
	defaultBackoff    = 5 * time.Millisecond
)

// Settlement is a persisted round together with the balance it left.
type Settlement struct {
	Record  Record          `json:"record"`
	Balance decimal.Decimal `json:"balance"`
}

// Settler applies round outcomes to balances and persists them. Each
// operation for a user runs under that user's lock, and every balance
// write is a compare-and-swap retried on ErrConflict. A settled round's
// record is committed together with its balance write.
type Settler struct {
	ledger  Ledger
	history History
	logger  *zap.Logger

	maxRetries uint64
	backoff    time.Duration
	now        func() time.Time

	locks sync.Map // userID -> *sync.Mutex
}

// Option configures a Settler.
type Option func(*Settler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Settler) { s.logger = l }
}

// WithRetry sets how often a conflicting balance write is retried and the
// base delay of the exponential backoff between attempts.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Settler) {
		s.maxRetries = maxRetries
		s.backoff = base
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Settler) { s.now = now }
}

// New returns a Settler over the given ports.
func New(ledger Ledger, history History, opts ...Option) *Settler {
	s := &Settler{
		ledger:     ledger,
		history:    history,
		logger:     zap.NewNop(),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("settle")
	return s
}

func (s *Settler) lock(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Balance returns the user's current account.
func (s *Settler) Balance(ctx context.Context, userID string) (Account, error) {
	return s.ledger.Balance(ctx, userID)
}

// Debit removes amount from the balance. It fails with
// ErrInsufficientFunds if the balance is smaller than amount.
func (s *Settler) Debit(ctx context.Context, userID string, amount decimal.Decimal) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, fmt.Errorf("%w: debit amount %s", games.ErrInvalidParam, amount)
	}
	unlock := s.lock(userID)
	defer unlock()
	return s.apply(ctx, userID, amount.Neg(), amount)
}

// Credit adds amount to the balance.
func (s *Settler) Credit(ctx context.Context, userID string, amount decimal.Decimal) (Account, error) {
	if amount.IsNegative() {
		return Account{}, fmt.Errorf("%w: credit amount %s", games.ErrInvalidParam, amount)
	}
	unlock := s.lock(userID)
	defer unlock()
	return s.apply(ctx, userID, amount, decimal.Zero)
}

// SettleInstant settles a single-call round (Dice, Limbo) in one balance
// write of payout - wager, committed with its record. The balance must
// cover the wager.
func (s *Settler) SettleInstant(ctx context.Context, userID string, res games.Resolution) (Settlement, error) {
	unlock := s.lock(userID)
	defer unlock()
	return s.commit(ctx, userID, res, res.Payout.Sub(res.Round.Wager), res.Round.Wager)
}

// Open takes the wager for a multi-step round (Mines, Blackjack) when it
// starts. An abandoned round keeps the wager.
func (s *Settler) Open(ctx context.Context, userID string, wager decimal.Decimal) (Account, error) {
	acct, err := s.Debit(ctx, userID, wager)
	if err != nil {
		return Account{}, err
	}
	s.logger.Debug("round opened",
		zap.String("user_id", userID),
		zap.String("wager", wager.String()),
		zap.String("balance", acct.Balance.String()),
	)
	return acct, nil
}

// Close credits the payout of a finished multi-step round and records it
// in the same write. The wager was already taken by Open.
func (s *Settler) Close(ctx context.Context, userID string, res games.Resolution) (Settlement, error) {
	unlock := s.lock(userID)
	defer unlock()
	return s.commit(ctx, userID, res, res.Payout, decimal.Zero)
}

// History lists a user's most recent rounds, newest first.
func (s *Settler) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	return s.history.ListRounds(ctx, userID, limit)
}

// Round loads one record.
func (s *Settler) Round(ctx context.Context, id string) (Record, error) {
	return s.history.GetRound(ctx, id)
}

// apply adds delta to the balance with compare-and-swap, re-reading and
// retrying on conflict. The current balance must be at least minBalance.
func (s *Settler) apply(ctx context.Context, userID string, delta, minBalance decimal.Decimal) (Account, error) {
	acct, err := s.update(ctx, userID, delta, minBalance,
		func(ctx context.Context, version int64, next decimal.Decimal) error {
			return s.ledger.CompareAndSwap(ctx, userID, version, next)
		})
	if err != nil {
		return Account{}, fmt.Errorf("update balance for %s: %w", userID, err)
	}
	return acct, nil
}

// commit is apply for a settled round: the balance write and the record
// insert go through Ledger.CommitRound and are retried as one unit.
func (s *Settler) commit(ctx context.Context, userID string, res games.Resolution, delta, minBalance decimal.Decimal) (Settlement, error) {
	rec, err := NewRecord(userID, res, s.now())
	if err != nil {
		return Settlement{}, err
	}

	acct, err := s.update(ctx, userID, delta, minBalance,
		func(ctx context.Context, version int64, next decimal.Decimal) error {
			return s.ledger.CommitRound(ctx, userID, version, next, rec)
		})
	if err != nil {
		return Settlement{}, fmt.Errorf("settle round %s for %s: %w", rec.ID, userID, err)
	}

	s.logger.Info("round settled",
		zap.String("round_id", rec.ID),
		zap.String("user_id", userID),
		zap.String("game", rec.Game),
		zap.String("drawer", res.Round.Drawer),
		zap.String("seed_hash", rec.SeedHash),
		zap.String("wager", rec.Wager.String()),
		zap.String("payout", rec.Payout.String()),
		zap.Bool("won", rec.Won),
	)
	return Settlement{Record: rec, Balance: acct.Balance}, nil
}

// update reads the balance, checks it against minBalance and hands
// balance+delta to write, retrying while write reports ErrConflict.
func (s *Settler) update(ctx context.Context, userID string, delta, minBalance decimal.Decimal,
	write func(ctx context.Context, version int64, next decimal.Decimal) error,
) (Account, error) {
	var acct Account
	attempt := 0
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		cur, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if cur.Balance.LessThan(minBalance) {
			return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, cur.Balance, minBalance)
		}

		next := cur.Balance.Add(delta)
		if err := write(ctx, cur.Version, next); err != nil {
			if errors.Is(err, ErrConflict) {
				s.logger.Warn("balance conflict, retrying",
					zap.String("user_id", userID),
					zap.Int64("version", cur.Version),
					zap.Int("attempt", attempt),
				)
				return retry.RetryableError(err)
			}
			return err
		}

		acct = cur
		acct.Balance = next
		acct.Version = cur.Version + 1
		acct.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}
