package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func line(key, value string) string {
	return fmt.Sprintf("%-14s %s\n", key, value)
}

func TestAutobetThenVerify(t *testing.T) {
	db := filepath.Join(t.TempDir(), "casino.db")
	script := writeFile(t, "flat.js", `
		nextbet = 1
		dobet = function() {}
	`)

	out, err := execute(t, "autobet", script, "--user", "alice", "--max-bets", "5", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, line("game", "dice"))
	assert.Contains(t, out, line("stopped by", "max bets"))
	assert.Contains(t, out, line("bets", "5"))

	ctx := context.Background()
	st, err := store.Open(ctx, db, zaptest.NewLogger(t))
	require.NoError(t, err)
	recs, err := st.ListRounds(ctx, "alice", 10)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, recs, 5)

	out, err = execute(t, "verify", recs[0].ID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, line("round", recs[0].ID))
	assert.Contains(t, out, line("verdict", "MATCH"))

	out, err = execute(t, "sessions", "-u", "alice", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "max_bets")
	assert.Contains(t, out, "5 bets")

	out, err = execute(t, "sessions", "-u", "nobody", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "no sessions\n", out)
}

func TestAutobetJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "casino.db")
	script := writeFile(t, "stop.js", `
		nextbet = 2
		target = 1.5
		log("go")
		dobet = function() { stop() }
	`)

	out, err := execute(t, "autobet", script, "-u", "bob", "-g", "limbo", "--json", "--db", db)
	require.NoError(t, err)

	var rep struct {
		Game   string `json:"game"`
		Reason string `json:"reason"`
		Placed int    `json:"placed"`
		Logs   []struct {
			Message string `json:"message"`
		} `json:"logs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, games.GameLimbo, rep.Game)
	assert.Equal(t, "script", rep.Reason)
	assert.Equal(t, 1, rep.Placed)
	require.Len(t, rep.Logs, 1)
	assert.Equal(t, "go", rep.Logs[0].Message)
}

func TestAutobetScriptError(t *testing.T) {
	db := filepath.Join(t.TempDir(), "casino.db")
	script := writeFile(t, "empty.js", `nextbet = 1`)

	_, err := execute(t, "autobet", script, "--user", "alice", "--db", db)
	assert.Error(t, err)
}

func verifyInput(t *testing.T, seed string) []byte {
	t.Helper()
	wager := decimal.NewFromInt(10)
	res, err := games.NewEngine(nil).PlayDice(wager, 50.5, true, "abc123")
	require.NoError(t, err)
	resolved := res.Resolve("abc123")

	round := resolved.Round
	round.Seed = seed
	data, err := json.Marshal(map[string]any{
		"round":  round,
		"result": resolved.Detail,
	})
	require.NoError(t, err)
	return data
}

func TestVerifyFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "casino.db")

	file := writeFile(t, "round.json", string(verifyInput(t, "abc123")))
	out, err := execute(t, "verify", "--file", file, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, line("seed", "abc123"))
	assert.Contains(t, out, line("drawer", "legacy"))
	assert.Contains(t, out, line("payout", "19.8"))
	assert.Contains(t, out, line("verdict", "MATCH"))

	// The round names its drawer, so a server switched to hmac still verifies it.
	out, err = execute(t, "verify", "--file", file, "--rng", "hmac", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, line("drawer", "legacy"))
	assert.Contains(t, out, line("verdict", "MATCH"))

	tampered := writeFile(t, "tampered.json", string(verifyInput(t, "abc124")))
	out, err = execute(t, "verify", "-f", tampered, "--db", db)
	assert.ErrorIs(t, err, ErrMismatch)
	assert.Contains(t, out, line("verdict", "MISMATCH"))
}

func TestCommandErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "casino.db")
	script := writeFile(t, "flat.js", `nextbet = 1; dobet = function() {}`)

	tests := map[string][]string{
		"verify without input":   {"verify", "--db", db},
		"verify with both":       {"verify", "some-id", "--file", script, "--db", db},
		"verify unknown round":   {"verify", "no-such-round", "--db", db},
		"verify unreadable file": {"verify", "--file", script, "--db", db},
		"autobet without user":   {"autobet", script, "--db", db},
		"autobet missing script": {"autobet", filepath.Join(t.TempDir(), "nope.js"), "-u", "alice", "--db", db},
		"autobet mines":          {"autobet", script, "-u", "alice", "-g", "mines", "--db", db},
		"sessions without user":  {"sessions", "--db", db},
		"bad rng":                {"verify", "x", "--rng", "dice", "--db", db},
		"bad log format":         {"verify", "x", "--log-format", "xml", "--db", db},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}
