// Package settle turns resolved rounds into balance changes and audit
// records. Storage is reached only through the Ledger and History ports.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
)

var (
	// ErrConflict is returned by Ledger.CompareAndSwap and CommitRound when
	// the stored version no longer matches the one the caller read.
	ErrConflict = errors.New("balance version conflict")

	// ErrInsufficientFunds is returned when a debit would take the balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned for unknown accounts and rounds.
	ErrNotFound = errors.New("not found")
)

// Account is a user's balance at a version. Every successful
// CompareAndSwap increments Version by one.
type Account struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ledger stores balances with optimistic concurrency. CommitRound is
// CompareAndSwap plus the insert of the round record, applied atomically:
// on any error neither the balance nor the record changes.
type Ledger interface {
	Balance(ctx context.Context, userID string) (Account, error)
	CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, newBalance decimal.Decimal) error
	CommitRound(ctx context.Context, userID string, expectedVersion int64, newBalance decimal.Decimal, r Record) error
}

// History reads round records. They are written by Ledger.CommitRound.
type History interface {
	ListRounds(ctx context.Context, userID string, limit int) ([]Record, error)
	GetRound(ctx context.Context, id string) (Record, error)
}

// Record is the persisted audit trail of one round. Params holds the
// games.Round needed to replay it and Result the per-game detail.
type Record struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Game       string          `json:"game"`
	Seed       string          `json:"seed"`
	SeedHash   string          `json:"seed_hash"`
	NoncesUsed uint64          `json:"nonces_used"`
	Wager      decimal.Decimal `json:"wager"`
	Payout     decimal.Decimal `json:"payout"`
	Multiplier float64         `json:"multiplier"`
	Won        bool            `json:"won"`
	Params     json.RawMessage `json:"params"`
	Result     json.RawMessage `json:"result"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Profit is payout minus wager.
func (r Record) Profit() decimal.Decimal {
	return r.Payout.Sub(r.Wager)
}

// Round decodes the replay inputs stored with the record.
func (r Record) Round() (games.Round, error) {
	var round games.Round
	if err := json.Unmarshal(r.Params, &round); err != nil {
		return games.Round{}, fmt.Errorf("decode round params %s: %w", r.ID, err)
	}
	return round, nil
}

// NewRecord builds the record for a resolution.
func NewRecord(userID string, res games.Resolution, now time.Time) (Record, error) {
	params, err := json.Marshal(res.Round)
	if err != nil {
		return Record{}, fmt.Errorf("encode round params: %w", err)
	}
	result, err := json.Marshal(res.Detail)
	if err != nil {
		return Record{}, fmt.Errorf("encode round result: %w", err)
	}

	return Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		Game:       res.Round.Game,
		Seed:       res.Round.Seed,
		SeedHash:   engine.HashSeed(res.Round.Seed),
		NoncesUsed: res.NoncesUsed,
		Wager:      res.Round.Wager,
		Payout:     res.Payout,
		Multiplier: res.Multiplier,
		Won:        res.Won,
		Params:     params,
		Result:     result,
		CreatedAt:  now.UTC(),
	}, nil
}
