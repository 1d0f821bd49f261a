package autobet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("autobet session not found")

// SessionRunning is the state of a session that has not ended yet.
const SessionRunning = "running"

// SessionFailed is the state of a session that ended with an error.
const SessionFailed = "failed"

// Session is the stored summary of one run. State is SessionRunning, a
// StopReason, or SessionFailed with Error set.
type Session struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Game          string          `json:"game"`
	Script        string          `json:"script"`
	State         string          `json:"state"`
	Error         string          `json:"error,omitempty"`
	StartBalance  decimal.Decimal `json:"start_balance"`
	FinalBalance  decimal.Decimal `json:"final_balance"`
	Bets          int             `json:"bets"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	Wagered       decimal.Decimal `json:"wagered"`
	Profit        decimal.Decimal `json:"profit"`
	HighestStreak int             `json:"highest_streak"`
	LowestStreak  int             `json:"lowest_streak"`
	CreatedAt     time.Time       `json:"created_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	EndSession(ctx context.Context, s Session) error
	ListSessions(ctx context.Context, userID string, limit int) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}

// end folds the report into the session. Totals count every bet of the
// run, including those before a resetstats().
func (s *Session) end(rep Report, runErr error, totals runTotals, now time.Time) {
	s.State = string(rep.Reason)
	if runErr != nil {
		s.State = SessionFailed
		s.Error = runErr.Error()
	}
	s.FinalBalance = rep.Stats.Balance
	s.Bets = rep.Placed
	s.Wins = totals.wins
	s.Losses = rep.Placed - totals.wins
	s.Wagered = totals.wagered
	s.Profit = s.FinalBalance.Sub(s.StartBalance)
	s.HighestStreak = totals.highestStreak
	s.LowestStreak = totals.lowestStreak
	ended := now.UTC()
	s.EndedAt = &ended
}

// runTotals accumulates across resetstats().
type runTotals struct {
	wins          int
	wagered       decimal.Decimal
	highestStreak int
	lowestStreak  int
}

func (t *runTotals) add(wager decimal.Decimal, win bool, streak int) {
	if win {
		t.wins++
	}
	t.wagered = t.wagered.Add(wager)
	if streak > t.highestStreak {
		t.highestStreak = streak
	}
	if streak < t.lowestStreak {
		t.lowestStreak = streak
	}
}
