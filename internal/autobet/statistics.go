package autobet

import (
	"github.com/shopspring/decimal"
)

// Statistics tracks a run.
type Statistics struct {
	Bets     int             `json:"bets"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Wagered  decimal.Decimal `json:"wagered"`
	Profit   decimal.Decimal `json:"profit"`
	Balance  decimal.Decimal `json:"balance"`
	StartBal decimal.Decimal `json:"start_balance"`

	WinStreak  int `json:"win_streak"`
	LoseStreak int `json:"lose_streak"`
	// Positive = win streak, negative = lose streak.
	CurrentStreak int `json:"current_streak"`

	HighestStreak int             `json:"highest_streak"`
	LowestStreak  int             `json:"lowest_streak"`
	HighestBet    decimal.Decimal `json:"highest_bet"`
	HighestProfit decimal.Decimal `json:"highest_profit"`
	LowestProfit  decimal.Decimal `json:"lowest_profit"`

	CurrentProfit decimal.Decimal `json:"current_profit"`
}

// NewStatistics starts a run at balance.
func NewStatistics(balance decimal.Decimal) *Statistics {
	return &Statistics{
		Balance:  balance,
		StartBal: balance,
	}
}

// Reset clears the counters and restarts from the current balance.
func (s *Statistics) Reset() {
	bal := s.Balance
	*s = Statistics{
		Balance:  bal,
		StartBal: bal,
	}
}

// RecordBet folds one settled bet into the statistics. balance is the
// account balance after the bet.
func (s *Statistics) RecordBet(wager, payout, balance decimal.Decimal, win bool) {
	s.Bets++

	profit := payout.Sub(wager)
	s.CurrentProfit = profit
	s.Profit = s.Profit.Add(profit)
	s.Wagered = s.Wagered.Add(wager)
	s.Balance = balance

	if win {
		s.Wins++
		s.WinStreak++
		s.LoseStreak = 0
		s.CurrentStreak = s.WinStreak
	} else {
		s.Losses++
		s.LoseStreak++
		s.WinStreak = 0
		s.CurrentStreak = -s.LoseStreak
	}

	if wager.GreaterThan(s.HighestBet) {
		s.HighestBet = wager
	}
	if s.Profit.GreaterThan(s.HighestProfit) {
		s.HighestProfit = s.Profit
	}
	if s.Profit.LessThan(s.LowestProfit) {
		s.LowestProfit = s.Profit
	}
	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
	if s.CurrentStreak < s.LowestStreak {
		s.LowestStreak = s.CurrentStreak
	}
}

// ChartPoint is the running profit after a bet.
type ChartPoint struct {
	BetNumber int     `json:"x"`
	Profit    float64 `json:"y"`
	Win       bool    `json:"win"`
}

// ChartBuffer holds a bounded profit curve.
type ChartBuffer struct {
	Points []ChartPoint `json:"points"`
	Max    int          `json:"-"`
}

// NewChartBuffer creates a chart buffer with the given max capacity.
func NewChartBuffer(max int) *ChartBuffer {
	if max <= 0 {
		max = 50
	}
	return &ChartBuffer{
		Points: make([]ChartPoint, 0, max),
		Max:    max,
	}
}

// Push adds a point. Once the buffer holds twice Max points it drops every
// other point, keeping the first and the last.
func (cb *ChartBuffer) Push(p ChartPoint) {
	cb.Points = append(cb.Points, p)

	if len(cb.Points) >= cb.Max*2 {
		decimated := make([]ChartPoint, 0, cb.Max+1)
		decimated = append(decimated, cb.Points[0])
		for i := 2; i < len(cb.Points)-1; i += 2 {
			decimated = append(decimated, cb.Points[i])
		}
		decimated = append(decimated, cb.Points[len(cb.Points)-1])
		cb.Points = decimated
	}
}

// Reset clears all chart data.
func (cb *ChartBuffer) Reset() {
	cb.Points = cb.Points[:0]
}
