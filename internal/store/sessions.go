package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/autobet"
)

var _ autobet.SessionStore = (*Store)(nil)

const sessionColumns = `id, user_id, name, game, script, state, error, start_balance,
	final_balance, bets, wins, losses, wagered, profit, highest_streak, lowest_streak,
	created_at, ended_at`

// CreateSession implements autobet.SessionStore.
func (s *Store) CreateSession(ctx context.Context, sess autobet.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO autobet_sessions (id, user_id, name, game, script, state,
			start_balance, final_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Name, sess.Game, sess.Script, sess.State,
		sess.StartBalance.String(), sess.FinalBalance.String(), toMillis(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

// EndSession implements autobet.SessionStore.
func (s *Store) EndSession(ctx context.Context, sess autobet.Session) error {
	var ended sql.NullInt64
	if sess.EndedAt != nil {
		ended = sql.NullInt64{Int64: toMillis(*sess.EndedAt), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE autobet_sessions SET
			state = ?, error = ?, final_balance = ?,
			bets = ?, wins = ?, losses = ?, wagered = ?, profit = ?,
			highest_streak = ?, lowest_streak = ?, ended_at = ?
		 WHERE id = ?`,
		sess.State, sess.Error, sess.FinalBalance.String(),
		sess.Bets, sess.Wins, sess.Losses, sess.Wagered.String(), sess.Profit.String(),
		sess.HighestStreak, sess.LowestStreak, ended,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, autobet.ErrSessionNotFound)
	}
	return nil
}

// ListSessions implements autobet.SessionStore. Sessions come newest
// first with the same limit rules as ListRounds.
func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]autobet.Session, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM autobet_sessions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	defer rows.Close()

	sessions := []autobet.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	return sessions, nil
}

// GetSession implements autobet.SessionStore.
func (s *Store) GetSession(ctx context.Context, id string) (autobet.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM autobet_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return autobet.Session{}, fmt.Errorf("session %s: %w", id, autobet.ErrSessionNotFound)
	}
	return sess, err
}

func scanSession(sc scanner) (autobet.Session, error) {
	var (
		sess                          autobet.Session
		start, final, wagered, profit string
		createdAt                     int64
		endedAt                       sql.NullInt64
	)
	if err := sc.Scan(
		&sess.ID, &sess.UserID, &sess.Name, &sess.Game, &sess.Script, &sess.State, &sess.Error,
		&start, &final, &sess.Bets, &sess.Wins, &sess.Losses, &wagered, &profit,
		&sess.HighestStreak, &sess.LowestStreak, &createdAt, &endedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return autobet.Session{}, err
		}
		return autobet.Session{}, fmt.Errorf("scan session: %w", err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&sess.StartBalance, start},
		{&sess.FinalBalance, final},
		{&sess.Wagered, wagered},
		{&sess.Profit, profit},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return autobet.Session{}, fmt.Errorf("parse amount of session %s: %w", sess.ID, err)
		}
		*f.dst = d
	}

	sess.CreatedAt = fromMillis(createdAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}
