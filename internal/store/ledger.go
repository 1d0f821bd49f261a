package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/settle"
)

// EnsureAccount creates the account with the opening balance if it does
// not exist yet and returns it.
func (s *Store) EnsureAccount(ctx context.Context, userID string, opening decimal.Decimal) (settle.Account, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, version, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, opening.String(), now, now,
	)
	if err != nil {
		return settle.Account{}, fmt.Errorf("ensure account %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("account created",
			zap.String("user_id", userID),
			zap.String("balance", opening.String()),
		)
	}
	return s.Balance(ctx, userID)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Balance implements settle.Ledger.
func (s *Store) Balance(ctx context.Context, userID string) (settle.Account, error) {
	return loadAccount(ctx, s.db, userID)
}

func loadAccount(ctx context.Context, q querier, userID string) (settle.Account, error) {
	var (
		balance   string
		updatedAt int64
	)
	acct := settle.Account{UserID: userID}
	err := q.QueryRowContext(ctx,
		`SELECT balance, version, updated_at FROM accounts WHERE user_id = ?`, userID,
	).Scan(&balance, &acct.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settle.Account{}, fmt.Errorf("account %s: %w", userID, settle.ErrNotFound)
	}
	if err != nil {
		return settle.Account{}, fmt.Errorf("load account %s: %w", userID, err)
	}

	acct.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return settle.Account{}, fmt.Errorf("parse balance of %s: %w", userID, err)
	}
	acct.UpdatedAt = fromMillis(updatedAt)
	return acct, nil
}

// CompareAndSwap implements settle.Ledger. The write only lands if the
// stored version still equals expectedVersion.
func (s *Store) CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newBalance decimal.Decimal) error {
	return s.swap(ctx, s.db, userID, expectedVersion, newBalance)
}

// CommitRound implements settle.Ledger. The balance write and the round
// insert run in one transaction; if either fails neither is kept.
func (s *Store) CommitRound(ctx context.Context, userID string, expectedVersion int64, newBalance decimal.Decimal, r settle.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.swap(ctx, tx, userID, expectedVersion, newBalance); err != nil {
		return err
	}
	if err := insertRound(ctx, tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit round %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) swap(ctx context.Context, q querier, userID string, expectedVersion int64, newBalance decimal.Decimal) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		newBalance.String(), toMillis(s.now()), userID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %s: %w", userID, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := loadAccount(ctx, q, userID); err != nil {
		return err
	}
	return fmt.Errorf("account %s at version %d: %w", userID, expectedVersion, settle.ErrConflict)
}
