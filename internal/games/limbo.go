package games

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/odds"
)

const (
	limboMinTarget = 1.01
	limboMaxTarget = 1000
)

// LimboResult is one Limbo round. Actual is rounded to two places for
// display; the win check uses the unrounded value.
type LimboResult struct {
	Actual    float64         `json:"actual"`
	Target    float64         `json:"target"`
	Won       bool            `json:"won"`
	WinChance float64         `json:"win_chance"`
	Wager     decimal.Decimal `json:"wager"`
	Payout    decimal.Decimal `json:"payout"`

	drawer string
}

// PlayLimbo draws the actual multiplier max(1, sqrt(1/(1-r))) and wins when
// it reaches target. A win pays wager x target x 0.99.
func (e *Engine) PlayLimbo(wager decimal.Decimal, target float64, seed string) (LimboResult, error) {
	if err := ValidateWager(wager); err != nil {
		return LimboResult{}, err
	}
	if math.IsNaN(target) || target < limboMinTarget || target > limboMaxTarget {
		return LimboResult{}, fmt.Errorf("%w: limbo target must be between %v and %v, got %v",
			ErrInvalidParam, limboMinTarget, limboMaxTarget, target)
	}

	o, err := odds.LimboOdds(target)
	if err != nil {
		return LimboResult{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	actual := odds.LimboActual(e.drawer.Draw(seed, 0))
	won := actual >= target

	res := LimboResult{
		Actual:    odds.Round2(actual),
		Target:    target,
		Won:       won,
		WinChance: o.Chance(),
		Wager:     wager,
		Payout:    decimal.Zero,
		drawer:    e.drawer.Name(),
	}
	if won {
		res.Payout = o.Payout(wager)
	}
	return res, nil
}

// Resolve packages the round for settlement.
func (r LimboResult) Resolve(seed string) Resolution {
	multiplier := 0.0
	if r.Won {
		multiplier = odds.Round2(r.Target * odds.HouseEdgeFactor)
	}
	return Resolution{
		Round: Round{
			Game:   GameLimbo,
			Drawer: r.drawer,
			Seed:   seed,
			Wager:  r.Wager,
			Target: r.Target,
		},
		NoncesUsed: 1,
		Won:        r.Won,
		Multiplier: multiplier,
		Payout:     r.Payout,
		Detail:     r,
	}
}
