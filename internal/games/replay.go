package games

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/engine"
)

// Round is everything needed to reproduce a round: the game, the drawer
// that produced it, the seed, the wager, the game parameters and the
// player's moves in order. An empty Drawer means the legacy drawer.
type Round struct {
	Game    string          `json:"game"`
	Drawer  string          `json:"drawer,omitempty"`
	Seed    string          `json:"seed"`
	Wager   decimal.Decimal `json:"wager"`
	Target  float64         `json:"target,omitempty"`
	Over    bool            `json:"over,omitempty"`
	Mines   int             `json:"mines,omitempty"`
	Reveals []int           `json:"reveals,omitempty"`
	CashOut bool            `json:"cash_out,omitempty"`
	Actions []string        `json:"actions,omitempty"`
}

// Replay plays r again from its seed with the drawer recorded in r, which
// need not be the one e was built with.
func (e *Engine) Replay(r Round) (Resolution, error) {
	name := r.Drawer
	if name == "" {
		name = engine.Legacy.Name()
	}
	if name != e.drawer.Name() {
		d, err := engine.DrawerByName(name)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		e = NewEngine(d)
	}

	switch r.Game {
	case GameDice:
		res, err := e.PlayDice(r.Wager, r.Target, r.Over, r.Seed)
		if err != nil {
			return Resolution{}, err
		}
		return res.Resolve(r.Seed), nil

	case GameLimbo:
		res, err := e.PlayLimbo(r.Wager, r.Target, r.Seed)
		if err != nil {
			return Resolution{}, err
		}
		return res.Resolve(r.Seed), nil

	case GameMines:
		st, err := NewMines(r.Mines)
		if err != nil {
			return Resolution{}, err
		}
		st = e.PlaceMines(st, r.Seed)
		for _, idx := range r.Reveals {
			st = st.Reveal(idx)
		}
		if r.CashOut {
			st = st.CashOut()
		}
		return st.Resolve(r.Seed, r.Wager), nil

	case GameBlackjack:
		st := e.StartBlackjack(r.Seed)
		for _, action := range r.Actions {
			switch action {
			case ActionHit:
				st = st.Hit()
			case ActionStand:
				st = st.Stand()
			default:
				return Resolution{}, fmt.Errorf("%w: blackjack action %q", ErrInvalidParam, action)
			}
		}
		return st.Resolve(r.Seed, r.Wager), nil

	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownGame, r.Game)
	}
}

// Verification is the outcome of checking a recorded round.
type Verification struct {
	Match    bool            `json:"match"`
	Replayed Resolution      `json:"replayed"`
	Recorded json.RawMessage `json:"recorded,omitempty"`
}

// Verify replays r and compares the replayed detail with the recorded
// detail JSON field by field.
func (e *Engine) Verify(r Round, recorded json.RawMessage) (Verification, error) {
	res, err := e.Replay(r)
	if err != nil {
		return Verification{}, err
	}

	replayed, err := json.Marshal(res.Detail)
	if err != nil {
		return Verification{}, fmt.Errorf("marshal replayed detail: %w", err)
	}

	match, err := jsonEqual(replayed, recorded)
	if err != nil {
		return Verification{}, err
	}
	return Verification{Match: match, Replayed: res, Recorded: recorded}, nil
}

func jsonEqual(a, b []byte) (bool, error) {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false, fmt.Errorf("decode replayed detail: %w", err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false, fmt.Errorf("decode recorded detail: %w", err)
	}
	return reflect.DeepEqual(va, vb), nil
}
