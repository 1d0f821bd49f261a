// Package autobet runs strategy scripts that place repeated Dice or Limbo
// bets. A script defines dobet(), which is called after every settled bet
// and sets the next wager through the nextbet, chance, bethigh and target
// variables. Calling stop() ends the run.
package autobet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/settle"
)

// ErrNoDobet is returned for scripts that do not define dobet().
var ErrNoDobet = errors.New("script must define a dobet() function")

// StopReason says why a run ended.
type StopReason string

const (
	StopScript            StopReason = "script"
	StopMaxBets           StopReason = "max_bets"
	StopInsufficientFunds StopReason = "insufficient_funds"
	StopCancelled         StopReason = "cancelled"
)

const (
	defaultScriptTimeout = 2 * time.Second
	chartPoints          = 500
)

// Config describes one run.
type Config struct {
	// Name labels the stored session.
	Name          string
	UserID        string
	Game          string
	MaxBets       int
	ScriptTimeout time.Duration
}

func (c Config) validate() error {
	switch c.Game {
	case games.GameDice, games.GameLimbo:
	default:
		return fmt.Errorf("%w: autobet supports dice and limbo, got %q", games.ErrInvalidParam, c.Game)
	}
	if c.UserID == "" {
		return fmt.Errorf("%w: user id is required", games.ErrInvalidParam)
	}
	if c.MaxBets <= 0 {
		return fmt.Errorf("%w: max bets must be positive, got %d", games.ErrInvalidParam, c.MaxBets)
	}
	return nil
}

// Report is the outcome of a run. It is returned alongside any error with
// whatever was played before the error. Stats cover the bets since the
// last resetstats(); Placed counts every bet of the run.
type Report struct {
	SessionID string       `json:"session_id,omitempty"`
	Game      string       `json:"game"`
	Reason    StopReason   `json:"reason"`
	Placed    int          `json:"placed"`
	Stats     Statistics   `json:"stats"`
	Chart     []ChartPoint `json:"chart"`
	Logs      []LogEntry   `json:"logs"`
}

// Runner plays scripts against a user's balance.
type Runner struct {
	eng      *games.Engine
	settler  *settle.Settler
	logger   *zap.Logger
	newSeed  func() string
	sessions SessionStore
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSeedSource replaces the per-bet seed generator.
func WithSeedSource(f func() string) Option {
	return func(r *Runner) { r.newSeed = f }
}

// WithSessions records every run in store.
func WithSessions(store SessionStore) Option {
	return func(r *Runner) { r.sessions = store }
}

// NewRunner returns a Runner settling through settler.
func NewRunner(eng *games.Engine, settler *settle.Settler, opts ...Option) *Runner {
	r := &Runner{
		eng:     eng,
		settler: settler,
		logger:  zap.NewNop(),
		newSeed: engine.NewSeed,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("autobet")
	return r
}

// Run executes script and bets until the script calls stop(), MaxBets bets
// are placed, the balance cannot cover the next bet, or ctx is done.
func (r *Runner) Run(ctx context.Context, script string, cfg Config) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = defaultScriptTimeout
	}

	acct, err := r.settler.Balance(ctx, cfg.UserID)
	if err != nil {
		return Report{}, err
	}

	rn := &run{
		Runner: r,
		cfg:    cfg,
		vm:     NewVM(cfg.ScriptTimeout),
		stats:  NewStatistics(acct.Balance),
		chart:  NewChartBuffer(chartPoints),
	}
	rn.vars = NewVariables(cfg.Game, rn.stats)

	sess, err := r.startSession(ctx, cfg, script, acct.Balance)
	if err != nil {
		return Report{}, err
	}

	r.logger.Info("run started",
		zap.String("user_id", cfg.UserID),
		zap.String("game", cfg.Game),
		zap.Int("max_bets", cfg.MaxBets),
		zap.String("balance", acct.Balance.String()),
	)

	reason, err := rn.loop(ctx, script)
	report := rn.report(reason)
	if sess != nil {
		report.SessionID = sess.ID
		sess.end(report, err, rn.totals, r.now())
		// The run may have been cancelled; the summary is still written.
		if endErr := r.sessions.EndSession(context.WithoutCancel(ctx), *sess); endErr != nil {
			r.logger.Error("failed to store session", zap.String("session_id", sess.ID), zap.Error(endErr))
		}
	}

	fields := []zap.Field{
		zap.String("user_id", cfg.UserID),
		zap.String("reason", string(reason)),
		zap.Int("bets", report.Placed),
		zap.String("profit", report.Stats.Profit.String()),
	}
	if err != nil {
		r.logger.Warn("run failed", append(fields, zap.Error(err))...)
		return report, err
	}
	r.logger.Info("run finished", fields...)
	return report, nil
}

type run struct {
	*Runner
	cfg   Config
	vm    *VM
	vars  *Variables
	stats *Statistics
	chart *ChartBuffer

	placed int
	totals runTotals
}

func (rn *run) loop(ctx context.Context, script string) (StopReason, error) {
	rn.vm.SetVariables(rn.vars)
	if err := rn.vm.Execute(ctx, script); err != nil {
		return "", err
	}
	rn.vm.SyncVariables(rn.vars)
	if !rn.vm.HasDobet() {
		return "", ErrNoDobet
	}

	for {
		if ctx.Err() != nil {
			return StopCancelled, nil
		}
		if rn.vm.StopRequested() {
			return StopScript, nil
		}
		if rn.placed >= rn.cfg.MaxBets {
			return StopMaxBets, nil
		}

		if math.IsNaN(rn.vars.NextBet) || math.IsInf(rn.vars.NextBet, 0) {
			return "", fmt.Errorf("%w: nextbet must be a finite number, got %v", games.ErrInvalidParam, rn.vars.NextBet)
		}
		wager := decimal.NewFromFloat(rn.vars.NextBet).Round(games.WagerPlaces)
		if !wager.IsPositive() {
			return "", fmt.Errorf("%w: nextbet must be > 0, got %v", games.ErrInvalidParam, rn.vars.NextBet)
		}

		drawn, st, err := rn.place(ctx, wager)
		switch {
		case errors.Is(err, settle.ErrInsufficientFunds):
			return StopInsufficientFunds, nil
		case ctx.Err() != nil:
			return StopCancelled, nil
		case err != nil:
			return "", fmt.Errorf("bet %d: %w", rn.placed+1, err)
		}
		rn.placed++

		rec := st.Record
		rn.stats.RecordBet(rec.Wager, rec.Payout, st.Balance, rec.Won)
		rn.totals.add(rec.Wager, rec.Won, rn.stats.CurrentStreak)
		rn.chart.Push(ChartPoint{
			BetNumber: rn.stats.Bets,
			Profit:    rn.stats.Profit.InexactFloat64(),
			Win:       rec.Won,
		})
		rn.logger.Debug("bet settled",
			zap.String("round_id", rec.ID),
			zap.String("wager", rec.Wager.String()),
			zap.String("payout", rec.Payout.String()),
			zap.Bool("won", rec.Won),
		)

		rn.vars.Win = rec.Won
		rn.vars.PreviousBet = rec.Wager.InexactFloat64()
		rn.vars.Balance = st.Balance.InexactFloat64()
		rn.vars.LastBet = map[string]any{
			"id":         rec.ID,
			"amount":     rec.Wager.InexactFloat64(),
			"payout":     rec.Payout.InexactFloat64(),
			"multiplier": rec.Multiplier,
			"win":        rec.Won,
			"result":     drawn,
		}
		rn.vm.SetVariables(rn.vars)

		if err := rn.vm.CallDobet(ctx); err != nil {
			if ctx.Err() != nil {
				return StopCancelled, nil
			}
			return "", err
		}
		rn.vm.SyncVariables(rn.vars)

		if rn.vm.TakeReset() {
			rn.stats.Reset()
			rn.chart.Reset()
		}
	}
}

func (rn *run) report(reason StopReason) Report {
	return Report{
		Game:   rn.cfg.Game,
		Reason: reason,
		Placed: rn.placed,
		Stats:  *rn.stats,
		Chart:  append([]ChartPoint{}, rn.chart.Points...),
		Logs:   rn.vm.Logs(),
	}
}

// place settles one bet with a fresh seed and returns the drawn value
// (dice roll or limbo multiplier) with the settlement.
func (rn *run) place(ctx context.Context, wager decimal.Decimal) (float64, settle.Settlement, error) {
	seed := rn.newSeed()

	var (
		res   games.Resolution
		drawn float64
	)
	switch rn.cfg.Game {
	case games.GameDice:
		over := rn.vars.BetHigh
		target := rn.vars.Chance
		if over {
			target = 100 - rn.vars.Chance
		}
		d, err := rn.eng.PlayDice(wager, target, over, seed)
		if err != nil {
			return 0, settle.Settlement{}, err
		}
		res, drawn = d.Resolve(seed), d.Roll
	case games.GameLimbo:
		l, err := rn.eng.PlayLimbo(wager, rn.vars.Target, seed)
		if err != nil {
			return 0, settle.Settlement{}, err
		}
		res, drawn = l.Resolve(seed), l.Actual
	}

	st, err := rn.settler.SettleInstant(ctx, rn.cfg.UserID, res)
	if err != nil {
		return 0, settle.Settlement{}, err
	}
	return drawn, st, nil
}

func (r *Runner) startSession(ctx context.Context, cfg Config, script string, balance decimal.Decimal) (*Session, error) {
	if r.sessions == nil {
		return nil, nil
	}
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       cfg.UserID,
		Name:         cfg.Name,
		Game:         cfg.Game,
		Script:       script,
		State:        SessionRunning,
		StartBalance: balance,
		FinalBalance: balance,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.sessions.CreateSession(ctx, *sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}
