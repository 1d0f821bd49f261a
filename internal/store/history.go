package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/settle"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ErrDuplicateRound is returned when a record ID is saved twice.
var ErrDuplicateRound = errors.New("round already recorded")

const roundColumns = `id, user_id, game, seed, seed_hash, nonces_used, wager, payout,
	multiplier, won, params, result, created_at`

func insertRound(ctx context.Context, q querier, r settle.Record) error {
	won := 0
	if r.Won {
		won = 1
	}
	params, result := string(r.Params), string(r.Result)
	if params == "" {
		params = "{}"
	}
	if result == "" {
		result = "{}"
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO rounds (`+roundColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Game, r.Seed, r.SeedHash, int64(r.NoncesUsed),
		r.Wager.String(), r.Payout.String(), r.Multiplier, won,
		params, result, toMillis(r.CreatedAt),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateRound, r.ID)
	}
	if err != nil {
		return fmt.Errorf("insert round %s: %w", r.ID, err)
	}
	return nil
}

// ListRounds implements settle.History. Records come newest first; limit
// defaults to 50 and is capped at 500.
func (s *Store) ListRounds(ctx context.Context, userID string, limit int) ([]settle.Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list rounds for %s: %w", userID, err)
	}
	defer rows.Close()

	records := []settle.Record{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rounds for %s: %w", userID, err)
	}
	return records, nil
}

// GetRound implements settle.History.
func (s *Store) GetRound(ctx context.Context, id string) (settle.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return settle.Record{}, fmt.Errorf("round %s: %w", id, settle.ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(sc scanner) (settle.Record, error) {
	var (
		r              settle.Record
		nonces         int64
		wager, payout  string
		won            int
		params, result string
		createdAt      int64
	)
	if err := sc.Scan(
		&r.ID, &r.UserID, &r.Game, &r.Seed, &r.SeedHash, &nonces,
		&wager, &payout, &r.Multiplier, &won, &params, &result, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settle.Record{}, err
		}
		return settle.Record{}, fmt.Errorf("scan round: %w", err)
	}

	var err error
	if r.Wager, err = decimal.NewFromString(wager); err != nil {
		return settle.Record{}, fmt.Errorf("parse wager of %s: %w", r.ID, err)
	}
	if r.Payout, err = decimal.NewFromString(payout); err != nil {
		return settle.Record{}, fmt.Errorf("parse payout of %s: %w", r.ID, err)
	}
	r.NoncesUsed = uint64(nonces)
	r.Won = won == 1
	r.Params = []byte(params)
	r.Result = []byte(result)
	r.CreatedAt = fromMillis(createdAt)
	return r, nil
}
