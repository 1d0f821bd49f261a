package autobet

import (
	"github.com/dop251/goja"
)

// Variables is the state shared with the script. Stats and Balance are
// read-only for the script; the betting fields are read back after every
// dobet() call.
type Variables struct {
	Game string `json:"game"`

	Balance     float64 `json:"balance"`
	NextBet     float64 `json:"nextbet"`
	BaseBet     float64 `json:"basebet"`
	PreviousBet float64 `json:"previousbet"`
	Win         bool    `json:"win"`

	// Dice: chance is the win chance in percent, bethigh rolls over.
	Chance  float64 `json:"chance"`
	BetHigh bool    `json:"bethigh"`

	// Limbo
	Target float64 `json:"target"`

	LastBet map[string]any `json:"lastBet"`

	Stats *Statistics `json:"-"`
}

// NewVariables returns the defaults a script starts from.
func NewVariables(game string, stats *Statistics) *Variables {
	return &Variables{
		Game:    game,
		Balance: stats.Balance.InexactFloat64(),
		Chance:  49.5,
		BetHigh: false,
		Target:  2,
		LastBet: map[string]any{},
		Stats:   stats,
	}
}

func injectVariables(vm *goja.Runtime, vars *Variables) {
	set := func(name string, v any) { _ = vm.Set(name, v) }

	set("game", vars.Game)
	set("balance", vars.Balance)
	set("nextbet", vars.NextBet)
	set("basebet", vars.BaseBet)
	set("previousbet", vars.PreviousBet)
	set("win", vars.Win)

	set("chance", vars.Chance)
	set("bethigh", vars.BetHigh)
	set("target", vars.Target)

	st := vars.Stats
	set("bets", st.Bets)
	set("wins", st.Wins)
	set("losses", st.Losses)
	set("profit", st.Profit.InexactFloat64())
	set("currentprofit", st.CurrentProfit.InexactFloat64())
	set("wagered", st.Wagered.InexactFloat64())
	set("winstreak", st.WinStreak)
	set("losestreak", st.LoseStreak)
	set("currentstreak", st.CurrentStreak)
	set("started_bal", st.StartBal.InexactFloat64())

	set("lastBet", vars.LastBet)
}

// syncFromVM reads back the variables a script may change.
func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextBet = toFloat64(vm.Get("nextbet"))
	vars.BaseBet = toFloat64(vm.Get("basebet"))
	vars.Chance = toFloat64(vm.Get("chance"))
	vars.BetHigh = toBool(vm.Get("bethigh"))
	vars.Target = toFloat64(vm.Get("target"))
}

func toFloat64(v goja.Value) float64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToFloat()
}

func toBool(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	return v.ToBoolean()
}
