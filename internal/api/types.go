package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/autobet"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/settle"
)

// GamesResponse lists the playable games.
type GamesResponse struct {
	Games   []games.Spec `json:"games"`
	Version string       `json:"version"`
}

// BalanceResponse is the caller's account.
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// HistoryResponse lists settled rounds, newest first.
type HistoryResponse struct {
	Rounds []settle.Record `json:"rounds"`
}

// DiceRequest places a dice bet.
type DiceRequest struct {
	Wager  decimal.Decimal `json:"wager"`
	Target float64         `json:"target"`
	Over   bool            `json:"over"`
}

// LimboRequest places a limbo bet.
type LimboRequest struct {
	Wager  decimal.Decimal `json:"wager"`
	Target float64         `json:"target"`
}

// InstantResponse is a settled single-call round.
type InstantResponse struct {
	Result  any             `json:"result"`
	RoundID string          `json:"round_id"`
	Seed    string          `json:"seed"`
	Balance decimal.Decimal `json:"balance"`
}

// MinesRequest starts a Mines round.
type MinesRequest struct {
	Wager decimal.Decimal `json:"wager"`
	Mines int             `json:"mines"`
}

// RevealRequest opens one tile, numbered 0-24 row by row.
type RevealRequest struct {
	Tile *int `json:"tile"`
}

// BlackjackRequest starts a Blackjack round.
type BlackjackRequest struct {
	Wager decimal.Decimal `json:"wager"`
}

// RoundResponse is the player's view of a multi-step round. While the
// round is in progress only the seed hash is shown; Settlement, the seed
// and the balance after payout appear once it is over.
type RoundResponse struct {
	RoundID    string             `json:"round_id"`
	Game       string             `json:"game"`
	SeedHash   string             `json:"seed_hash"`
	Wager      decimal.Decimal    `json:"wager"`
	State      any                `json:"state"`
	Balance    decimal.Decimal    `json:"balance"`
	Finished   bool               `json:"finished"`
	Seed       string             `json:"seed,omitempty"`
	Settlement *settle.Settlement `json:"settlement,omitempty"`
}

// VerifyRequest names a stored round, or carries a round and its
// recorded result directly.
type VerifyRequest struct {
	RoundID string          `json:"round_id,omitempty"`
	Round   *games.Round    `json:"round,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// VerifyResponse is the outcome of replaying a round.
type VerifyResponse struct {
	RoundID  string             `json:"round_id,omitempty"`
	SeedHash string             `json:"seed_hash"`
	Drawer   string             `json:"drawer"`
	Result   games.Verification `json:"verification"`
}

// AutobetRequest runs a strategy script. MaxBets defaults to 100.
type AutobetRequest struct {
	Name    string `json:"name"`
	Game    string `json:"game"`
	Script  string `json:"script"`
	MaxBets int    `json:"max_bets"`
}

// AutobetResponse is the finished run and the balance after it.
type AutobetResponse struct {
	Report  autobet.Report  `json:"report"`
	Balance decimal.Decimal `json:"balance"`
}

// SessionsResponse lists stored autobet runs, newest first.
type SessionsResponse struct {
	Sessions []autobet.Session `json:"sessions"`
}
