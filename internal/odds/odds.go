// Package odds turns win conditions into house-edge adjusted multipliers
// and payouts. Money is carried as decimal.Decimal; multipliers shown to
// players are rounded to two places.
package odds

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// HouseEdgeFactor is applied to every fair multiplier (1% house edge).
	HouseEdgeFactor = 0.99

	// BoardTiles is the size of the Mines board.
	BoardTiles = 25

	// currencyPlaces is the precision of the platform currency unit.
	currencyPlaces = 2
)

// ErrImpossibleOdds is returned when a win chance falls outside (0, 1].
var ErrImpossibleOdds = errors.New("win chance out of range")

var (
	houseEdge = decimal.NewFromFloat(HouseEdgeFactor)
	hundred   = decimal.NewFromInt(100)
	one       = decimal.NewFromInt(1)
)

// Odds describes a single-threshold bet.
type Odds struct {
	WinChance  decimal.Decimal
	Multiplier decimal.Decimal // unrounded, house edge applied
}

// Chance returns the win probability as a float.
func (o Odds) Chance() float64 {
	return o.WinChance.InexactFloat64()
}

// DisplayMultiplier is the multiplier rounded to two places.
func (o Odds) DisplayMultiplier() float64 {
	return o.Multiplier.Round(currencyPlaces).InexactFloat64()
}

// Payout returns wager x multiplier in currency units.
func (o Odds) Payout(wager decimal.Decimal) decimal.Decimal {
	return Payout(wager, o.Multiplier)
}

// DiceOdds computes p = (100-target)/100 for "roll over" and target/100 for
// "roll under", and the multiplier 0.99/p.
func DiceOdds(target float64, over bool) (Odds, error) {
	t := decimal.NewFromFloat(target)
	p := t.Div(hundred)
	if over {
		p = hundred.Sub(t).Div(hundred)
	}
	return fromChance(p)
}

// LimboOdds computes p = 1/target and the multiplier 0.99/p = 0.99*target.
func LimboOdds(target float64) (Odds, error) {
	t := decimal.NewFromFloat(target)
	if t.LessThan(one) {
		return Odds{}, fmt.Errorf("%w: target %v", ErrImpossibleOdds, target)
	}
	return Odds{
		WinChance:  one.Div(t),
		Multiplier: houseEdge.Mul(t),
	}, nil
}

func fromChance(p decimal.Decimal) (Odds, error) {
	if !p.IsPositive() || p.GreaterThan(one) {
		return Odds{}, fmt.Errorf("%w: %s", ErrImpossibleOdds, p)
	}
	return Odds{WinChance: p, Multiplier: houseEdge.Div(p)}, nil
}

// MinesMultiplier is the hypergeometric survival multiplier after revealing
// k safe tiles on a board holding the given number of mines:
//
//	prod_{i=1..k} (25-i+1) / (safe-i+1)
//
// Numerator and denominator are accumulated as exact integers, divided once
// and rounded to two places. It is exactly 1 when k is 0.
func MinesMultiplier(revealedSafe, mines int) float64 {
	if revealedSafe <= 0 {
		return 1
	}
	safe := BoardTiles - mines
	if revealedSafe > safe {
		revealedSafe = safe
	}
	num := decimal.NewFromInt(1)
	den := decimal.NewFromInt(1)
	for i := 1; i <= revealedSafe; i++ {
		num = num.Mul(decimal.NewFromInt(int64(BoardTiles - i + 1)))
		den = den.Mul(decimal.NewFromInt(int64(safe - i + 1)))
	}
	return num.DivRound(den, currencyPlaces).InexactFloat64()
}

// LimboActual maps a draw r in [0, 1) onto the exponential-tail multiplier
// max(1, (1/(1-r))^0.5). The value is unrounded.
func LimboActual(r float64) float64 {
	actual := math.Pow(1/(1-r), 0.5)
	if actual < 1 {
		return 1
	}
	return actual
}

// Blackjack payout factors.
const (
	BlackjackWinFactor  = 2
	BlackjackPushFactor = 1
	BlackjackLoseFactor = 0
)

// Payout multiplies a wager by a multiplier and rounds to the currency unit.
func Payout(wager, multiplier decimal.Decimal) decimal.Decimal {
	return wager.Mul(multiplier).Round(currencyPlaces)
}

// PayoutFloat is Payout for a float multiplier that is already rounded.
func PayoutFloat(wager decimal.Decimal, multiplier float64) decimal.Decimal {
	return Payout(wager, decimal.NewFromFloat(multiplier))
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(currencyPlaces).InexactFloat64()
}
