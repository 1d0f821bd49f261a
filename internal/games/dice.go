package games

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/odds"
)

// Accepted dice targets. Each range leaves a win chance between 1% and 98%.
const (
	diceOverMin  = 2
	diceOverMax  = 98
	diceUnderMin = 1
	diceUnderMax = 99
)

// DiceResult is one dice roll. Roll and Multiplier are rounded to two
// places for display; the payout uses the unrounded multiplier.
type DiceResult struct {
	Roll       float64         `json:"roll"`
	Target     float64         `json:"target"`
	Over       bool            `json:"over"`
	Won        bool            `json:"won"`
	WinChance  float64         `json:"win_chance"`
	Multiplier float64         `json:"multiplier"`
	Wager      decimal.Decimal `json:"wager"`
	Payout     decimal.Decimal `json:"payout"`

	drawer string
}

// PlayDice rolls draw(seed, 0) * 100 and wins on roll > target when over is
// set, roll < target otherwise.
func (e *Engine) PlayDice(wager decimal.Decimal, target float64, over bool, seed string) (DiceResult, error) {
	if err := ValidateWager(wager); err != nil {
		return DiceResult{}, err
	}
	lo, hi := float64(diceUnderMin), float64(diceUnderMax)
	if over {
		lo, hi = diceOverMin, diceOverMax
	}
	if math.IsNaN(target) || target < lo || target > hi {
		return DiceResult{}, fmt.Errorf("%w: dice target must be between %v and %v, got %v",
			ErrInvalidParam, lo, hi, target)
	}

	o, err := odds.DiceOdds(target, over)
	if err != nil {
		return DiceResult{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	roll := e.drawer.Draw(seed, 0) * 100
	won := roll < target
	if over {
		won = roll > target
	}

	res := DiceResult{
		Roll:      odds.Round2(roll),
		Target:    target,
		Over:      over,
		Won:       won,
		WinChance: o.Chance(),
		Wager:     wager,
		Payout:    decimal.Zero,
		drawer:    e.drawer.Name(),
	}
	if won {
		res.Multiplier = o.DisplayMultiplier()
		res.Payout = o.Payout(wager)
	}
	return res, nil
}

// Resolve packages the roll for settlement.
func (r DiceResult) Resolve(seed string) Resolution {
	return Resolution{
		Round: Round{
			Game:   GameDice,
			Drawer: r.drawer,
			Seed:   seed,
			Wager:  r.Wager,
			Target: r.Target,
			Over:   r.Over,
		},
		NoncesUsed: 1,
		Won:        r.Won,
		Multiplier: r.Multiplier,
		Payout:     r.Payout,
		Detail:     r,
	}
}
