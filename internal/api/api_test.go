package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/settle"
	"github.com/MJE43/pf-casino/internal/store"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, seeds ...string) *testServer {
	t.Helper()
	var opts []Option
	if len(seeds) > 0 {
		next := 0
		opts = append(opts, WithSeedSource(func() string {
			seed := seeds[next%len(seeds)]
			next++
			return seed
		}))
	}
	return newTestServerWith(t, games.NewEngine(nil), opts...)
}

func newTestServerWith(t *testing.T, eng *games.Engine, extra ...Option) *testServer {
	t.Helper()
	db, err := store.Open(context.Background(), store.MemoryPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zaptest.NewLogger(t)
	opts := []Option{
		WithLogger(logger),
		WithOpeningBalance(decimal.NewFromInt(1000)),
		WithSessions(db),
	}
	opts = append(opts, extra...)

	settler := settle.New(db, db, settle.WithLogger(logger))
	srv := NewServer(eng, settler, db, opts...)
	return &testServer{t: t, handler: srv.Routes()}
}

func (ts *testServer) do(method, path, user string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) APIError {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	e := decode[APIError](t, w)
	assert.Equal(t, errType, e.Type)
	assert.NotEmpty(t, e.RequestID)
	assert.Equal(t, errType, w.Header().Get("X-Error-Type"))
	return e
}

type diceResponse struct {
	Result  games.DiceResult `json:"result"`
	RoundID string           `json:"round_id"`
	Seed    string           `json:"seed"`
	Balance decimal.Decimal  `json:"balance"`
}

type limboResponse struct {
	Result  games.LimboResult `json:"result"`
	RoundID string            `json:"round_id"`
	Balance decimal.Decimal   `json:"balance"`
}

type minesResponse struct {
	RoundID    string             `json:"round_id"`
	SeedHash   string             `json:"seed_hash"`
	State      games.MinesView    `json:"state"`
	Balance    decimal.Decimal    `json:"balance"`
	Finished   bool               `json:"finished"`
	Seed       string             `json:"seed"`
	Settlement *settle.Settlement `json:"settlement"`
}

type blackjackResponse struct {
	RoundID    string              `json:"round_id"`
	State      games.BlackjackView `json:"state"`
	Balance    decimal.Decimal     `json:"balance"`
	Finished   bool                `json:"finished"`
	Seed       string              `json:"seed"`
	Settlement *settle.Settlement  `json:"settlement"`
}

func assertBalance(t *testing.T, ts *testServer, user, want string) {
	t.Helper()
	w := ts.do(http.MethodGet, "/api/v1/balance", user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[BalanceResponse](t, w)
	assert.Equal(t, want, got.Balance.String())
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthCheckResponse](t, w)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, "legacy", resp.Drawer)
	assert.Contains(t, resp.Checks, "database")
	assert.Contains(t, resp.Checks, "games")
}

func TestGamesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/v1/games", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[GamesResponse](t, w)
	require.Len(t, resp.Games, 4)
	assert.Equal(t, games.GameBlackjack, resp.Games[0].ID)
	assert.NotEmpty(t, resp.Version)
}

func TestUserHeaderRequired(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/v1/balance", "", nil)
	requireError(t, w, http.StatusBadRequest, ErrTypeMissingUser)
}

func TestBalanceOpensAccount(t *testing.T) {
	ts := newTestServer(t)
	assertBalance(t, ts, "alice", "1000")
}

func TestDice(t *testing.T) {
	ts := newTestServer(t, "abc123")

	w := ts.do(http.MethodPost, "/api/v1/dice", "alice", DiceRequest{
		Wager:  decimal.NewFromInt(10),
		Target: 50,
		Over:   true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[diceResponse](t, w)

	assert.Equal(t, 56.25, resp.Result.Roll)
	assert.True(t, resp.Result.Won)
	assert.Equal(t, "19.8", resp.Result.Payout.String())
	assert.Equal(t, "abc123", resp.Seed)
	assert.Equal(t, "1009.8", resp.Balance.String())
	assertBalance(t, ts, "alice", "1009.8")

	w = ts.do(http.MethodPost, "/api/v1/dice", "alice", DiceRequest{
		Wager:  decimal.NewFromInt(10),
		Target: 50,
		Over:   false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[diceResponse](t, w)
	assert.False(t, resp.Result.Won)
	assert.Equal(t, "999.8", resp.Balance.String())
}

func TestDiceRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/dice", "alice", DiceRequest{
		Wager:  decimal.NewFromInt(10),
		Target: 99,
		Over:   true,
	})
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)

	w = ts.do(http.MethodPost, "/api/v1/dice", "alice", map[string]any{"wager": "10", "bogus": 1})
	requireError(t, w, http.StatusBadRequest, ErrTypeValidation)

	w = ts.do(http.MethodPost, "/api/v1/dice", "alice", DiceRequest{
		Wager:  decimal.NewFromInt(5000),
		Target: 50,
		Over:   true,
	})
	requireError(t, w, http.StatusPaymentRequired, ErrTypeInsufficientFunds)

	assertBalance(t, ts, "alice", "1000")
}

func TestLimbo(t *testing.T) {
	ts := newTestServer(t, "abc123")

	w := ts.do(http.MethodPost, "/api/v1/limbo", "bob", LimboRequest{
		Wager:  decimal.NewFromInt(10),
		Target: 1.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[limboResponse](t, w)

	assert.True(t, resp.Result.Won)
	assert.Equal(t, "14.85", resp.Result.Payout.String())
	assert.Equal(t, "1004.85", resp.Balance.String())

	w = ts.do(http.MethodPost, "/api/v1/limbo", "bob", LimboRequest{
		Wager:  decimal.NewFromInt(10),
		Target: 1.52,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[limboResponse](t, w)
	assert.False(t, resp.Result.Won)
	assert.Equal(t, "994.85", resp.Balance.String())
}

func TestMinesCashOut(t *testing.T) {
	ts := newTestServer(t, "abc123")

	w := ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{
		Wager: decimal.NewFromInt(10),
		Mines: 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	start := decode[minesResponse](t, w)
	assert.Equal(t, "990", start.Balance.String())
	assert.Equal(t, games.MinesInProgress, start.State.Status)
	assert.Empty(t, start.State.MinePositions)
	assert.Empty(t, start.Seed)
	assert.NotEmpty(t, start.SeedHash)
	for _, tile := range start.State.Tiles {
		assert.Equal(t, games.TileHidden, tile)
	}

	base := "/api/v1/mines/" + start.RoundID

	// Nothing revealed yet.
	w = ts.do(http.MethodPost, base+"/cashout", "alice", nil)
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)

	tile := 0
	w = ts.do(http.MethodPost, base+"/reveal", "alice", RevealRequest{Tile: &tile})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	step := decode[minesResponse](t, w)
	assert.False(t, step.Finished)
	assert.Equal(t, games.TileGem, step.State.Tiles[0])
	assert.Equal(t, 1.14, step.State.Multiplier)

	w = ts.do(http.MethodPost, base+"/reveal", "alice", RevealRequest{Tile: &tile})
	requireError(t, w, http.StatusBadRequest, ErrTypeValidation)

	w = ts.do(http.MethodGet, base, "bob", nil)
	requireError(t, w, http.StatusNotFound, ErrTypeRoundNotFound)

	w = ts.do(http.MethodPost, base+"/cashout", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[minesResponse](t, w)
	assert.True(t, done.Finished)
	assert.Equal(t, "abc123", done.Seed)
	assert.Equal(t, games.MinesWon, done.State.Status)
	assert.Equal(t, []int{14, 12, 1}, done.State.MinePositions)
	require.NotNil(t, done.Settlement)
	assert.Equal(t, "11.4", done.Settlement.Record.Payout.String())
	assert.Equal(t, "1001.4", done.Balance.String())

	// The round is gone once settled.
	w = ts.do(http.MethodPost, base+"/cashout", "alice", nil)
	requireError(t, w, http.StatusNotFound, ErrTypeRoundNotFound)
}

func TestMinesHitMine(t *testing.T) {
	ts := newTestServer(t, "abc123")

	w := ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{
		Wager: decimal.NewFromInt(10),
		Mines: 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	start := decode[minesResponse](t, w)

	tile := 14
	w = ts.do(http.MethodPost, "/api/v1/mines/"+start.RoundID+"/reveal", "alice", RevealRequest{Tile: &tile})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[minesResponse](t, w)

	assert.True(t, done.Finished)
	assert.Equal(t, games.MinesLost, done.State.Status)
	assert.Equal(t, games.TileMine, done.State.Tiles[14])
	require.NotNil(t, done.Settlement)
	assert.True(t, done.Settlement.Record.Payout.IsZero())
	assert.Equal(t, "990", done.Balance.String())
}

func TestMinesRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, "abc123")

	w := ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{Wager: decimal.NewFromInt(10), Mines: 25})
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)

	w = ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{Wager: decimal.Zero, Mines: 3})
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)

	w = ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{Wager: decimal.RequireFromString("0.001"), Mines: 3})
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)
	assertBalance(t, ts, "alice", "1000")

	w = ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{Wager: decimal.NewFromInt(10), Mines: 3})
	require.Equal(t, http.StatusCreated, w.Code)
	start := decode[minesResponse](t, w)

	for _, body := range []any{RevealRequest{}, map[string]int{"tile": 25}, map[string]int{"tile": -1}} {
		w = ts.do(http.MethodPost, "/api/v1/mines/"+start.RoundID+"/reveal", "alice", body)
		requireError(t, w, http.StatusBadRequest, ErrTypeValidation)
	}

	w = ts.do(http.MethodPost, "/api/v1/mines/nope/reveal", "alice", map[string]int{"tile": 0})
	requireError(t, w, http.StatusNotFound, ErrTypeRoundNotFound)

	// Rounds are per game.
	w = ts.do(http.MethodPost, "/api/v1/blackjack/"+start.RoundID+"/hit", "alice", nil)
	requireError(t, w, http.StatusNotFound, ErrTypeRoundNotFound)
}

// slowDrawer is the legacy drawer with a delay on every streamed draw.
type slowDrawer struct {
	engine.LegacyDrawer
	delay time.Duration
}

func (d slowDrawer) Stream(seed string) engine.Stream {
	next := d.LegacyDrawer.Stream(seed)
	return func(nonce uint64) float64 {
		time.Sleep(d.delay)
		return next(nonce)
	}
}

func TestMinesPlacementTimeoutKeepsWager(t *testing.T) {
	eng := games.NewEngine(slowDrawer{delay: 100 * time.Millisecond})
	ts := newTestServerWith(t, eng, WithTimeout(20*time.Millisecond), WithSeedSource(func() string { return "abc123" }))
	assertBalance(t, ts, "alice", "1000")

	w := ts.do(http.MethodPost, "/api/v1/mines", "alice", MinesRequest{Wager: decimal.NewFromInt(10), Mines: 1})
	requireError(t, w, http.StatusGatewayTimeout, ErrTypeTimeout)
	assertBalance(t, ts, "alice", "1000")
}

func TestRejectsSubCentWagers(t *testing.T) {
	ts := newTestServer(t, "abc123")

	tests := map[string]struct {
		path string
		body any
	}{
		"dice":      {"/api/v1/dice", DiceRequest{Wager: decimal.RequireFromString("0.004"), Target: 2}},
		"limbo":     {"/api/v1/limbo", LimboRequest{Wager: decimal.RequireFromString("1.005"), Target: 2}},
		"mines":     {"/api/v1/mines", MinesRequest{Wager: decimal.RequireFromString("2.999"), Mines: 3}},
		"blackjack": {"/api/v1/blackjack", BlackjackRequest{Wager: decimal.RequireFromString("0.0001")}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := ts.do(http.MethodPost, tt.path, "alice", tt.body)
			requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)
		})
	}
	assertBalance(t, ts, "alice", "1000")
}

func TestBlackjackStandWins(t *testing.T) {
	ts := newTestServer(t, "round-10")

	w := ts.do(http.MethodPost, "/api/v1/blackjack", "carol", BlackjackRequest{Wager: decimal.NewFromInt(20)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	start := decode[blackjackResponse](t, w)
	assert.Equal(t, "980", start.Balance.String())
	assert.Equal(t, 18, start.State.PlayerValue)
	assert.True(t, start.State.HoleHidden)
	assert.Len(t, start.State.Dealer, 1)

	w = ts.do(http.MethodGet, "/api/v1/blackjack/"+start.RoundID, "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/blackjack/"+start.RoundID+"/stand", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[blackjackResponse](t, w)

	assert.True(t, done.Finished)
	assert.Equal(t, "round-10", done.Seed)
	assert.Equal(t, games.OutcomeWin, done.State.Outcome)
	assert.Equal(t, 22, done.State.DealerValue)
	assert.False(t, done.State.HoleHidden)
	assert.Equal(t, "1020", done.Balance.String())
	assertBalance(t, ts, "carol", "1020")
}

func TestBlackjackHitBusts(t *testing.T) {
	ts := newTestServer(t, "round-10")

	w := ts.do(http.MethodPost, "/api/v1/blackjack", "carol", BlackjackRequest{Wager: decimal.NewFromInt(20)})
	require.Equal(t, http.StatusCreated, w.Code)
	start := decode[blackjackResponse](t, w)

	w = ts.do(http.MethodPost, "/api/v1/blackjack/"+start.RoundID+"/hit", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[blackjackResponse](t, w)

	assert.True(t, done.Finished)
	assert.Equal(t, games.OutcomeLose, done.State.Outcome)
	assert.Equal(t, 24, done.State.PlayerValue)
	assert.Equal(t, "980", done.Balance.String())
}

func TestHistoryAndVerify(t *testing.T) {
	ts := newTestServer(t, "abc123", "round-10")

	w := ts.do(http.MethodPost, "/api/v1/dice", "alice", DiceRequest{Wager: decimal.NewFromInt(10), Target: 50, Over: true})
	require.Equal(t, http.StatusOK, w.Code)
	dice := decode[diceResponse](t, w)

	w = ts.do(http.MethodPost, "/api/v1/blackjack", "alice", BlackjackRequest{Wager: decimal.NewFromInt(20)})
	require.Equal(t, http.StatusCreated, w.Code)
	bj := decode[blackjackResponse](t, w)
	w = ts.do(http.MethodPost, "/api/v1/blackjack/"+bj.RoundID+"/stand", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/history?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[HistoryResponse](t, w)
	require.Len(t, hist.Rounds, 2)
	assert.Equal(t, games.GameBlackjack, hist.Rounds[0].Game)
	assert.Equal(t, dice.RoundID, hist.Rounds[1].ID)

	for _, rec := range hist.Rounds {
		w = ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{RoundID: rec.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		v := decode[VerifyResponse](t, w)
		assert.True(t, v.Result.Match, rec.Game)
		assert.Equal(t, rec.SeedHash, v.SeedHash)
		assert.Equal(t, "legacy", v.Drawer)
	}

	// Another user cannot see alice's rounds.
	w = ts.do(http.MethodPost, "/api/v1/verify", "mallory", VerifyRequest{RoundID: dice.RoundID})
	requireError(t, w, http.StatusNotFound, ErrTypeRoundNotFound)

	w = ts.do(http.MethodGet, "/api/v1/history", "mallory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[HistoryResponse](t, w).Rounds)
}

func TestVerifySuppliedRound(t *testing.T) {
	ts := newTestServer(t)
	round := games.Round{Game: games.GameDice, Seed: "abc123", Wager: decimal.NewFromInt(10), Target: 50, Over: true}

	res, err := games.NewEngine(nil).Replay(round)
	require.NoError(t, err)
	recorded, err := json.Marshal(res.Detail)
	require.NoError(t, err)

	w := ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Round: &round, Result: recorded})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[VerifyResponse](t, w)
	assert.True(t, resp.Result.Match)
	assert.Equal(t, "legacy", resp.Drawer)

	tampered := []byte(`{"roll":12.5}`)
	w = ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Round: &round, Result: tampered})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[VerifyResponse](t, w).Result.Match)

	w = ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{})
	requireError(t, w, http.StatusBadRequest, ErrTypeValidation)

	unknown := round
	unknown.Drawer = "xorshift"
	w = ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Round: &unknown, Result: recorded})
	requireError(t, w, http.StatusBadRequest, ErrTypeInvalidParams)

	bad := games.Round{Game: "roulette", Seed: "x"}
	w = ts.do(http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Round: &bad, Result: recorded})
	requireError(t, w, http.StatusNotFound, ErrTypeGameNotFound)
}

func TestHistoryLimitValidation(t *testing.T) {
	ts := newTestServer(t)
	for _, limit := range []string{"0", "-3", "abc", fmt.Sprint(maxHistoryLimit + 1)} {
		w := ts.do(http.MethodGet, "/api/v1/history?limit="+limit, "alice", nil)
		requireError(t, w, http.StatusBadRequest, ErrTypeValidation)
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, CategoryValidation, GetErrorCategory(ErrTypeInvalidParams))
	assert.Equal(t, CategoryFunds, GetErrorCategory(ErrTypeInsufficientFunds))
	assert.Equal(t, CategoryNotFound, GetErrorCategory(ErrTypeRoundNotFound))
	assert.Equal(t, CategoryConflict, GetErrorCategory(ErrTypeConflict))
	assert.Equal(t, CategorySystem, GetErrorCategory("mystery"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		errType string
	}{
		{fmt.Errorf("wrap: %w", games.ErrInvalidParam), http.StatusBadRequest, ErrTypeInvalidParams},
		{fmt.Errorf("wrap: %w", settle.ErrInsufficientFunds), http.StatusPaymentRequired, ErrTypeInsufficientFunds},
		{fmt.Errorf("wrap: %w", settle.ErrConflict), http.StatusConflict, ErrTypeConflict},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrTypeTimeout},
		{NewError(ErrTypeRoundFinished, "done").Build(), http.StatusConflict, ErrTypeRoundFinished},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, ErrTypeInternal},
	}
	for _, tt := range tests {
		status, errType, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.errType, errType, tt.err.Error())
	}
}
