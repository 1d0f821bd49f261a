package games

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/pf-casino/internal/engine"
)

func startMines(t *testing.T, seed string, mines int) MinesState {
	t.Helper()
	return startMinesWith(t, NewEngine(nil), seed, mines)
}

func startMinesWith(t *testing.T, e *Engine, seed string, mines int) MinesState {
	t.Helper()
	st, err := NewMines(mines)
	require.NoError(t, err)
	return e.PlaceMines(st, seed)
}

func TestNewMines(t *testing.T) {
	st, err := NewMines(3)
	require.NoError(t, err)
	assert.Equal(t, MinesNotStarted, st.Status)
	assert.Equal(t, 1.0, st.Multiplier)
	assert.Equal(t, 22, st.SafeTiles())
	for i := range st.Grid {
		assert.False(t, st.Grid[i])
	}

	for _, bad := range []int{-1, 0, 25, 30} {
		_, err := NewMines(bad)
		assert.ErrorIs(t, err, ErrInvalidParam, "mines=%d", bad)
	}
}

func TestPlaceMinesKnownLayouts(t *testing.T) {
	tests := []struct {
		seed      string
		mines     int
		positions []int
		draws     uint64
	}{
		{"abc123", 1, []int{14}, 1},
		{"abc123", 3, []int{14, 12, 1}, 1001},
		{"abc123", 5, []int{14, 12, 1, 8, 3}, 100001},
		{"test", 3, []int{1, 10, 16}, 101},
		{"test", 5, []int{1, 10, 16, 13, 14}, 10001},
		{"mines-seed", 3, []int{18, 21, 19}, 101},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.seed, tt.mines), func(t *testing.T) {
			st := startMines(t, tt.seed, tt.mines)
			assert.Equal(t, MinesInProgress, st.Status)
			assert.Equal(t, tt.positions, st.MinePositions)
			assert.Equal(t, tt.draws, st.NoncesUsed)
			for _, pos := range tt.positions {
				assert.True(t, st.Grid[pos])
			}
		})
	}
}

func TestPlaceMinesUniqueAndReproducible(t *testing.T) {
	drawers := []engine.Drawer{engine.Legacy, engine.HMACDrawer{}}
	for _, d := range drawers {
		e := NewEngine(d)
		for i := 0; i < 10; i++ {
			seed := fmt.Sprintf("%d-round", i)
			st, err := NewMines(5)
			require.NoError(t, err)

			a := e.PlaceMines(st, seed)
			b := e.PlaceMines(st, seed)
			require.Equal(t, a.MinePositions, b.MinePositions)
			require.Len(t, a.MinePositions, 5)

			seen := make(map[int]bool)
			mines := 0
			for _, pos := range a.MinePositions {
				assert.GreaterOrEqual(t, pos, 0)
				assert.Less(t, pos, 25)
				assert.False(t, seen[pos], "%s: duplicate %d", seed, pos)
				seen[pos] = true
			}
			for _, m := range a.Grid {
				if m {
					mines++
				}
			}
			assert.Equal(t, 5, mines)
		}
	}
}

func TestPlaceMinesOnlyOnce(t *testing.T) {
	st := startMines(t, "abc123", 3)
	again := NewEngine(nil).PlaceMines(st, "test")
	assert.Equal(t, st, again)
}

func TestMinesRevealSafe(t *testing.T) {
	st := startMines(t, "abc123", 3) // mines at 14, 12, 1

	st = st.Reveal(0)
	assert.Equal(t, MinesInProgress, st.Status)
	assert.Equal(t, 1.14, st.Multiplier)

	st = st.Reveal(2)
	assert.Equal(t, 1.3, st.Multiplier)
	assert.Equal(t, []int{0, 2}, st.RevealOrder)
	assert.Equal(t, 2, st.SafeRevealed())
}

func TestMinesRevealMineFirst(t *testing.T) {
	st := startMines(t, "abc123", 3)

	st = st.Reveal(14)
	assert.Equal(t, MinesLost, st.Status)
	assert.Equal(t, 1.0, st.Multiplier)
	assert.True(t, st.Revealed[14])
	assert.True(t, st.Payout(decimal.NewFromInt(10)).IsZero())
}

func TestMinesClearBoardSingleMine(t *testing.T) {
	st := startMines(t, "abc123", 1) // mine at 14

	for i := 0; i < 25; i++ {
		if i == 14 {
			continue
		}
		st = st.Reveal(i)
	}
	assert.Equal(t, MinesWon, st.Status)
	assert.Equal(t, 25.0, st.Multiplier)
	assert.False(t, st.CashedOut)
	assert.Equal(t, "250.00", st.Payout(decimal.NewFromInt(10)).StringFixed(2))
}

func TestMinesCashOut(t *testing.T) {
	st := startMines(t, "abc123", 3)

	// Nothing revealed yet: the multiplier is 1 and cashing out is refused.
	assert.Equal(t, st, st.CashOut())

	st = st.Reveal(0).CashOut()
	assert.Equal(t, MinesWon, st.Status)
	assert.True(t, st.CashedOut)
	assert.Equal(t, 1.14, st.Multiplier)
	assert.Equal(t, 1, st.SafeRevealed())
	assert.Equal(t, "11.40", st.Payout(decimal.NewFromInt(10)).StringFixed(2))
}

func TestMinesIgnoredReveals(t *testing.T) {
	notStarted, err := NewMines(3)
	require.NoError(t, err)
	assert.Equal(t, notStarted, notStarted.Reveal(0))
	assert.Equal(t, notStarted, notStarted.CashOut())

	st := startMines(t, "abc123", 3).Reveal(0)
	assert.Equal(t, st, st.Reveal(0), "already revealed")
	assert.Equal(t, st, st.Reveal(-1))
	assert.Equal(t, st, st.Reveal(25))
}

func TestMinesTerminalIdempotence(t *testing.T) {
	lost := startMines(t, "abc123", 3).Reveal(14)
	assert.Equal(t, lost, lost.Reveal(0))
	assert.Equal(t, lost, lost.Reveal(12))
	assert.Equal(t, lost, lost.CashOut())

	won := startMines(t, "abc123", 3).Reveal(0).CashOut()
	assert.Equal(t, won, won.Reveal(2))
	assert.Equal(t, won, won.CashOut())
}

func TestMinesDoesNotMutateReceiver(t *testing.T) {
	st := startMines(t, "abc123", 3).Reveal(0)
	before := st.clone()

	_ = st.Reveal(2)
	_ = st.Reveal(14)
	_ = st.CashOut()
	assert.Equal(t, before, st)
}

func TestMinesView(t *testing.T) {
	st := startMines(t, "abc123", 3).Reveal(0)

	v := st.View()
	assert.Equal(t, TileGem, v.Tiles[0])
	assert.Equal(t, TileHidden, v.Tiles[14], "mines stay hidden in play")
	assert.Nil(t, v.MinePositions)
	assert.Equal(t, 1.3, v.NextMultiplier)

	v = st.Reveal(12).View()
	assert.Equal(t, MinesLost, v.Status)
	assert.Equal(t, []int{14, 12, 1}, v.MinePositions)
	assert.Equal(t, TileMine, v.Tiles[14])
	assert.Equal(t, TileMine, v.Tiles[1])
	assert.Equal(t, TileGem, v.Tiles[3])
	assert.Zero(t, v.NextMultiplier)
}

func TestMinesResolve(t *testing.T) {
	st := startMines(t, "abc123", 3).Reveal(0).Reveal(2).CashOut()
	res := st.Resolve("abc123", decimal.NewFromInt(10))

	assert.Equal(t, Round{
		Game:    GameMines,
		Drawer:  "legacy",
		Seed:    "abc123",
		Wager:   decimal.NewFromInt(10),
		Mines:   3,
		Reveals: []int{0, 2},
		CashOut: true,
	}, res.Round)
	assert.True(t, res.Won)
	assert.Equal(t, 1.3, res.Multiplier)
	assert.Equal(t, "13.00", res.Payout.StringFixed(2))
	assert.Equal(t, uint64(1001), res.NoncesUsed)

	lost := startMines(t, "abc123", 3).Reveal(1).Resolve("abc123", decimal.NewFromInt(10))
	assert.False(t, lost.Won)
	assert.Zero(t, lost.Multiplier)
	assert.True(t, lost.Payout.IsZero())
}
