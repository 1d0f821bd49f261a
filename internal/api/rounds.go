package api

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/games"
)

// liveRound is a Mines or Blackjack round between its first and last
// request. mu serializes moves on the round.
type liveRound struct {
	mu sync.Mutex

	id    string
	owner string
	game  string
	seed  string
	wager decimal.Decimal

	mines     games.MinesState
	blackjack games.BlackjackState
	done      bool
}

// roundTable holds in-progress rounds by ID. Finished rounds are removed.
// A round abandoned by its player stays until the process exits; its
// wager was taken when it started.
type roundTable struct {
	mu     sync.RWMutex
	rounds map[string]*liveRound
}

func newRoundTable() *roundTable {
	return &roundTable{rounds: make(map[string]*liveRound)}
}

func (t *roundTable) add(owner, game, seed string, wager decimal.Decimal) *liveRound {
	lr := &liveRound{
		id:    uuid.NewString(),
		owner: owner,
		game:  game,
		seed:  seed,
		wager: wager,
	}
	t.mu.Lock()
	t.rounds[lr.id] = lr
	t.mu.Unlock()
	return lr
}

// get returns the round if it exists, is a round of game, and belongs to
// owner. Other users' rounds are reported as missing.
func (t *roundTable) get(id, owner, game string) (*liveRound, error) {
	t.mu.RLock()
	lr, ok := t.rounds[id]
	t.mu.RUnlock()
	if !ok || lr.owner != owner || lr.game != game {
		return nil, NewError(ErrTypeRoundNotFound, "round not found").
			WithContext("round_id", id).
			Build()
	}
	return lr, nil
}

func (t *roundTable) remove(id string) {
	t.mu.Lock()
	delete(t.rounds, id)
	t.mu.Unlock()
}

func (t *roundTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rounds)
}
