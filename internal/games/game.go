// Package games implements the round logic for Dice, Limbo, Mines and
// Blackjack on top of the deterministic drawer in package engine.
//
// Every operation is a pure function of its inputs. Mines and Blackjack
// states are plain values: each call returns a new state and leaves the
// receiver untouched, and operations on a finished round return it
// unchanged.
package games

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/qmuntal/stateless"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/engine"
)

// Game identifiers.
const (
	GameDice      = "dice"
	GameLimbo     = "limbo"
	GameMines     = "mines"
	GameBlackjack = "blackjack"
)

var (
	// ErrInvalidParam is returned for out-of-range wagers, targets and
	// mine counts. Nothing is clamped.
	ErrInvalidParam = errors.New("invalid game parameter")

	// ErrUnknownGame is returned by Replay for an unregistered game ID.
	ErrUnknownGame = errors.New("unknown game")
)

// Spec describes a game for listings.
type Spec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Stateful    bool   `json:"stateful"`
	Description string `json:"description"`
}

var registry = map[string]Spec{
	GameDice: {
		ID:          GameDice,
		Name:        "Dice",
		Description: "Roll 0-100 over or under a target",
	},
	GameLimbo: {
		ID:          GameLimbo,
		Name:        "Limbo",
		Description: "Beat a target multiplier",
	},
	GameMines: {
		ID:          GameMines,
		Name:        "Mines",
		Stateful:    true,
		Description: "Reveal gems on a 5x5 board, avoid the mines",
	},
	GameBlackjack: {
		ID:          GameBlackjack,
		Name:        "Blackjack",
		Stateful:    true,
		Description: "Single-hand blackjack, dealer stands on 17",
	},
}

// GetGame retrieves a game spec by ID.
func GetGame(id string) (Spec, bool) {
	spec, ok := registry[id]
	return spec, ok
}

// ListGames returns all game specs ordered by ID.
func ListGames() []Spec {
	specs := make([]Spec, 0, len(registry))
	for _, spec := range registry {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// Engine binds the game rules to a drawer.
type Engine struct {
	drawer engine.Drawer
}

// NewEngine returns an Engine drawing from d, or from engine.Legacy when d
// is nil.
func NewEngine(d engine.Drawer) *Engine {
	if d == nil {
		d = engine.Legacy
	}
	return &Engine{drawer: d}
}

// Drawer returns the drawer the engine was built with.
func (e *Engine) Drawer() engine.Drawer {
	return e.drawer
}

// Resolution is a finished (or abandoned) round as handed to settlement:
// the inputs that reproduce it, the payout, and the per-game detail that
// is persisted for audit.
type Resolution struct {
	Round      Round           `json:"round"`
	NoncesUsed uint64          `json:"nonces_used"`
	Won        bool            `json:"won"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Detail     any             `json:"detail"`
}

// WagerPlaces is the number of decimal places a wager may carry.
const WagerPlaces = 2

// ValidateWager checks that wager is positive and has at most WagerPlaces
// decimal places.
func ValidateWager(wager decimal.Decimal) error {
	if !wager.IsPositive() {
		return fmt.Errorf("%w: wager must be positive, got %s", ErrInvalidParam, wager)
	}
	if !wager.Equal(wager.Truncate(WagerPlaces)) {
		return fmt.Errorf("%w: wager has more than %d decimal places, got %s", ErrInvalidParam, WagerPlaces, wager)
	}
	return nil
}

// newMachine builds a state machine whose state lives in the caller's
// struct. Triggers that are not permitted in the current state, or whose
// guards all fail, are ignored.
func newMachine(get func() stateless.State, set func(stateless.State)) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) { return get(), nil },
		func(_ context.Context, s stateless.State) error {
			set(s)
			return nil
		},
		stateless.FiringImmediate,
	)
	sm.OnUnhandledTrigger(func(context.Context, stateless.State, stateless.Trigger, []string) error {
		return nil
	})
	return sm
}

// fire runs a trigger. Entry actions never fail, so an error here means
// the machine is misconfigured.
func fire(sm *stateless.StateMachine, trigger stateless.Trigger, args ...any) {
	if err := sm.Fire(trigger, args...); err != nil {
		panic(fmt.Errorf("games: firing %v: %w", trigger, err))
	}
}
