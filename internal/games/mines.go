package games

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/qmuntal/stateless"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/odds"
)

// MinesStatus is the lifecycle position of a Mines round.
type MinesStatus string

const (
	MinesNotStarted MinesStatus = "not_started"
	MinesInProgress MinesStatus = "in_progress"
	MinesWon        MinesStatus = "won"
	MinesLost       MinesStatus = "lost"
)

const (
	minesMinCount = 1
	minesMaxCount = odds.BoardTiles - 1

	// maxPlacementDraws bounds the rejection-sampling loop. The legacy
	// drawer produces near-identical values for neighbouring nonces, so a
	// high mine count can take tens of millions of draws; a seed that
	// needs more than this is treated as a broken drawer.
	maxPlacementDraws = 1 << 32
)

const (
	triggerPlace   = "place"
	triggerReveal  = "reveal"
	triggerCashOut = "cash_out"
)

// MinesState is one Mines round. Grid marks the mine cells; it must not be
// shown to the player before the round ends (see View).
type MinesState struct {
	MineCount     int
	Status        MinesStatus
	Grid          [odds.BoardTiles]bool
	Revealed      [odds.BoardTiles]bool
	RevealOrder   []int
	MinePositions []int
	Multiplier    float64
	CashedOut     bool
	NoncesUsed    uint64

	drawer string
}

// NewMines returns an all-safe board waiting for mine placement.
func NewMines(mineCount int) (MinesState, error) {
	if mineCount < minesMinCount || mineCount > minesMaxCount {
		return MinesState{}, fmt.Errorf("%w: mines count must be between %d and %d, got %d",
			ErrInvalidParam, minesMinCount, minesMaxCount, mineCount)
	}
	return MinesState{
		MineCount:  mineCount,
		Status:     MinesNotStarted,
		Multiplier: 1,
	}, nil
}

// PlaceMines lays the mines for seed and opens the round. Positions are
// floor(draw(seed, nonce) * 25) for nonce 0, 1, 2, ..., skipping cells
// that already hold a mine. Only a NotStarted state is affected.
func (e *Engine) PlaceMines(s MinesState, seed string) MinesState {
	next := s.clone()
	if next.Status == MinesNotStarted {
		next.drawer = e.drawer.Name()
	}
	fire(next.machine(), triggerPlace, e.drawer, seed)
	return next
}

// Reveal opens a cell. Revealing a mine loses the round; revealing the
// last safe cell wins it. Cells already open, indexes off the board and
// rounds that are not in progress are left alone.
func (s MinesState) Reveal(index int) MinesState {
	next := s.clone()
	fire(next.machine(), triggerReveal, index)
	return next
}

// CashOut ends an in-progress round as won at the current multiplier. It
// needs at least one safe reveal (multiplier > 1).
func (s MinesState) CashOut() MinesState {
	next := s.clone()
	fire(next.machine(), triggerCashOut)
	return next
}

// Terminal reports whether the round is over.
func (s MinesState) Terminal() bool {
	return s.Status == MinesWon || s.Status == MinesLost
}

// SafeTiles is the number of gem cells on the board.
func (s MinesState) SafeTiles() int {
	return odds.BoardTiles - s.MineCount
}

// SafeRevealed counts revealed gem cells.
func (s MinesState) SafeRevealed() int {
	n := 0
	for i, open := range s.Revealed {
		if open && !s.Grid[i] {
			n++
		}
	}
	return n
}

// Payout is wager x multiplier for a won round and zero otherwise.
func (s MinesState) Payout(wager decimal.Decimal) decimal.Decimal {
	if s.Status != MinesWon {
		return decimal.Zero
	}
	return odds.PayoutFloat(wager, s.Multiplier)
}

func (s MinesState) clone() MinesState {
	s.RevealOrder = slices.Clone(s.RevealOrder)
	s.MinePositions = slices.Clone(s.MinePositions)
	return s
}

func (s *MinesState) machine() *stateless.StateMachine {
	sm := newMachine(
		func() stateless.State { return s.Status },
		func(st stateless.State) { s.Status = st.(MinesStatus) },
	)

	sm.Configure(MinesNotStarted).
		Permit(triggerPlace, MinesInProgress)

	sm.Configure(MinesInProgress).
		OnEntryFrom(triggerPlace, s.place).
		Permit(triggerReveal, MinesLost, s.hitsMine).
		Permit(triggerReveal, MinesWon, s.clearsBoard).
		InternalTransition(triggerReveal, s.revealSafe, s.revealsSafe).
		Permit(triggerCashOut, MinesWon, func(context.Context, ...any) bool {
			return s.Multiplier > 1
		})

	sm.Configure(MinesLost).
		OnEntryFrom(triggerReveal, s.open)

	sm.Configure(MinesWon).
		OnEntryFrom(triggerReveal, s.revealSafe).
		OnEntryFrom(triggerCashOut, func(context.Context, ...any) error {
			s.CashedOut = true
			return nil
		})

	return sm
}

func (s *MinesState) place(_ context.Context, args ...any) error {
	d := args[0].(engine.Drawer)
	seed := args[1].(string)

	s.MinePositions, s.NoncesUsed = placeMines(d, seed, s.MineCount)
	s.Grid = [odds.BoardTiles]bool{}
	for _, pos := range s.MinePositions {
		s.Grid[pos] = true
	}
	return nil
}

func placeMines(d engine.Drawer, seed string, count int) ([]int, uint64) {
	draw := d.Stream(seed)
	set := linkedhashset.New()

	var nonce uint64
	for set.Size() < count {
		if nonce >= maxPlacementDraws {
			panic(fmt.Errorf("games: placed %d of %d mines after %d draws", set.Size(), count, nonce))
		}
		set.Add(int(math.Floor(draw(nonce) * odds.BoardTiles)))
		nonce++
	}

	positions := make([]int, 0, count)
	for _, v := range set.Values() {
		positions = append(positions, v.(int))
	}
	return positions, nonce
}

// hidden returns the cell index carried by a reveal trigger and whether it
// is a closed cell on the board.
func (s *MinesState) hidden(args []any) (int, bool) {
	i := args[0].(int)
	return i, i >= 0 && i < odds.BoardTiles && !s.Revealed[i]
}

func (s *MinesState) hitsMine(_ context.Context, args ...any) bool {
	i, ok := s.hidden(args)
	return ok && s.Grid[i]
}

func (s *MinesState) revealsSafe(_ context.Context, args ...any) bool {
	i, ok := s.hidden(args)
	return ok && !s.Grid[i] && s.SafeRevealed()+1 < s.SafeTiles()
}

func (s *MinesState) clearsBoard(_ context.Context, args ...any) bool {
	i, ok := s.hidden(args)
	return ok && !s.Grid[i] && s.SafeRevealed()+1 == s.SafeTiles()
}

func (s *MinesState) open(_ context.Context, args ...any) error {
	i := args[0].(int)
	s.Revealed[i] = true
	s.RevealOrder = append(s.RevealOrder, i)
	return nil
}

func (s *MinesState) revealSafe(ctx context.Context, args ...any) error {
	if err := s.open(ctx, args...); err != nil {
		return err
	}
	s.Multiplier = odds.MinesMultiplier(s.SafeRevealed(), s.MineCount)
	return nil
}

// MinesView is what the player may see. Mine positions stay hidden until
// the round is over.
type MinesView struct {
	Status         MinesStatus             `json:"status"`
	MineCount      int                     `json:"mine_count"`
	Tiles          [odds.BoardTiles]string `json:"tiles"`
	RevealOrder    []int                   `json:"reveal_order"`
	Multiplier     float64                 `json:"multiplier"`
	NextMultiplier float64                 `json:"next_multiplier,omitempty"`
	MinePositions  []int                   `json:"mine_positions,omitempty"`
}

// Tile states in a MinesView.
const (
	TileHidden = "hidden"
	TileGem    = "gem"
	TileMine   = "mine"
)

// View projects the state for the player.
func (s MinesState) View() MinesView {
	v := MinesView{
		Status:      s.Status,
		MineCount:   s.MineCount,
		RevealOrder: slices.Clone(s.RevealOrder),
		Multiplier:  s.Multiplier,
	}
	if v.RevealOrder == nil {
		v.RevealOrder = []int{}
	}

	terminal := s.Terminal()
	for i := range v.Tiles {
		switch {
		case !s.Revealed[i] && !terminal:
			v.Tiles[i] = TileHidden
		case s.Grid[i]:
			v.Tiles[i] = TileMine
		default:
			v.Tiles[i] = TileGem
		}
	}

	if terminal {
		v.MinePositions = slices.Clone(s.MinePositions)
	} else if s.Status == MinesInProgress {
		v.NextMultiplier = odds.MinesMultiplier(s.SafeRevealed()+1, s.MineCount)
	}
	return v
}

// MinesResult is the audit record of a Mines round.
type MinesResult struct {
	MineCount     int         `json:"mine_count"`
	MinePositions []int       `json:"mine_positions"`
	RevealOrder   []int       `json:"reveal_order"`
	Multiplier    float64     `json:"multiplier"`
	Status        MinesStatus `json:"status"`
	CashedOut     bool        `json:"cashed_out"`
}

// Result returns the audit record.
func (s MinesState) Result() MinesResult {
	r := MinesResult{
		MineCount:     s.MineCount,
		MinePositions: slices.Clone(s.MinePositions),
		RevealOrder:   slices.Clone(s.RevealOrder),
		Multiplier:    s.Multiplier,
		Status:        s.Status,
		CashedOut:     s.CashedOut,
	}
	if r.RevealOrder == nil {
		r.RevealOrder = []int{}
	}
	return r
}

// Resolve packages the round for settlement.
func (s MinesState) Resolve(seed string, wager decimal.Decimal) Resolution {
	payout := s.Payout(wager)
	multiplier := 0.0
	if s.Status == MinesWon {
		multiplier = s.Multiplier
	}
	return Resolution{
		Round: Round{
			Game:    GameMines,
			Drawer:  s.drawer,
			Seed:    seed,
			Wager:   wager,
			Mines:   s.MineCount,
			Reveals: slices.Clone(s.RevealOrder),
			CashOut: s.CashedOut,
		},
		NoncesUsed: s.NoncesUsed,
		Won:        s.Status == MinesWon,
		Multiplier: multiplier,
		Payout:     payout,
		Detail:     s.Result(),
	}
}
