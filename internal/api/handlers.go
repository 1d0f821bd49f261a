package api

import (
	"net/http"
	"strconv"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
)

const maxHistoryLimit = 500

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:   games.ListGames(),
		Version: Version,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := s.settler.Balance(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:  acct.UserID,
		Balance: acct.Balance,
		Version: acct.Version,
	})
}

// limitParam reads the optional ?limit= of list endpoints. Zero means the
// store default.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxHistoryLimit {
		return 0, validation("limit", "limit must be an integer between 1 and %d", maxHistoryLimit)
	}
	return n, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	recs, err := s.settler.History(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Rounds: recs})
}

func (s *Server) handleDice(w http.ResponseWriter, r *http.Request) {
	var req DiceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	seed := s.newSeed()
	res, err := s.eng.PlayDice(req.Wager, req.Target, req.Over, seed)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	st, err := s.settler.SettleInstant(r.Context(), userFrom(r.Context()), res.Resolve(seed))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, InstantResponse{
		Result:  res,
		RoundID: st.Record.ID,
		Seed:    seed,
		Balance: st.Balance,
	})
}

func (s *Server) handleLimbo(w http.ResponseWriter, r *http.Request) {
	var req LimboRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	seed := s.newSeed()
	res, err := s.eng.PlayLimbo(req.Wager, req.Target, seed)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	st, err := s.settler.SettleInstant(r.Context(), userFrom(r.Context()), res.Resolve(seed))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, InstantResponse{
		Result:  res,
		RoundID: st.Record.ID,
		Seed:    seed,
		Balance: st.Balance,
	})
}

// handleVerify replays a stored round of the caller, or a round supplied
// in the body, and compares it with the recorded result.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	var (
		round  games.Round
		result = req.Result
	)
	switch {
	case req.RoundID != "":
		rec, err := s.settler.Round(r.Context(), req.RoundID)
		if err == nil && rec.UserID != userFrom(r.Context()) {
			err = NewError(ErrTypeRoundNotFound, "round not found").Build()
		}
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if round, err = rec.Round(); err != nil {
			s.handleError(w, r, err)
			return
		}
		result = rec.Result
	case req.Round != nil && len(req.Result) > 0:
		round = *req.Round
	default:
		s.handleError(w, r, validation("round_id", "round_id, or round and result, are required"))
		return
	}

	v, err := s.eng.Verify(round, result)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, VerifyResponse{
		RoundID:  req.RoundID,
		SeedHash: engine.HashSeed(round.Seed),
		Drawer:   v.Replayed.Round.Drawer,
		Result:   v,
	})
}
