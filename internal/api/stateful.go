package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/odds"
	"github.com/MJE43/pf-casino/internal/settle"
)

func (s *Server) handleMinesStart(w http.ResponseWriter, r *http.Request) {
	var req MinesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	st, err := games.NewMines(req.Mines)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := games.ValidateWager(req.Wager); err != nil {
		s.handleError(w, r, err)
		return
	}

	// Placement can take up to a second at high mine counts. The wager is
	// only taken once the board is ready and the request is still live.
	seed := s.newSeed()
	st = s.eng.PlaceMines(st, seed)
	if err := r.Context().Err(); err != nil {
		s.handleError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	acct, err := s.settler.Open(r.Context(), user, req.Wager)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	lr := s.rounds.add(user, games.GameMines, seed, req.Wager)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.mines = st

	s.logger.Info("mines started",
		zap.String("round_id", lr.id),
		zap.String("user_id", user),
		zap.String("seed_hash", engine.HashSeed(seed)),
		zap.Int("mines", req.Mines),
		zap.Uint64("placement_draws", lr.mines.NoncesUsed),
	)
	s.writeJSON(w, http.StatusCreated, s.roundResponse(lr, acct, nil))
}

func (s *Server) handleMinesGet(w http.ResponseWriter, r *http.Request) {
	s.withRound(w, r, games.GameMines, func(lr *liveRound) (*settle.Settlement, error) {
		return nil, nil
	})
}

func (s *Server) handleMinesReveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Tile == nil || *req.Tile < 0 || *req.Tile >= odds.BoardTiles {
		s.handleError(w, r, validation("tile", "tile must be between 0 and %d", odds.BoardTiles-1))
		return
	}

	s.withRound(w, r, games.GameMines, func(lr *liveRound) (*settle.Settlement, error) {
		if lr.mines.Revealed[*req.Tile] {
			return nil, validation("tile", "tile %d is already revealed", *req.Tile)
		}
		return s.advanceMines(r.Context(), lr, lr.mines.Reveal(*req.Tile))
	})
}

func (s *Server) handleMinesCashOut(w http.ResponseWriter, r *http.Request) {
	s.withRound(w, r, games.GameMines, func(lr *liveRound) (*settle.Settlement, error) {
		next := lr.mines.CashOut()
		if !next.Terminal() {
			return nil, NewError(ErrTypeInvalidParams, "reveal at least one gem before cashing out").Build()
		}
		return s.advanceMines(r.Context(), lr, next)
	})
}

// advanceMines commits next to lr, settling first if the round is over.
// A failed settlement leaves lr unchanged.
func (s *Server) advanceMines(ctx context.Context, lr *liveRound, next games.MinesState) (*settle.Settlement, error) {
	if !next.Terminal() {
		lr.mines = next
		return nil, nil
	}
	st, err := s.settler.Close(ctx, lr.owner, next.Resolve(lr.seed, lr.wager))
	if err != nil {
		return nil, err
	}
	lr.mines = next
	s.finish(lr)
	return &st, nil
}

func (s *Server) handleBlackjackStart(w http.ResponseWriter, r *http.Request) {
	var req BlackjackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := games.ValidateWager(req.Wager); err != nil {
		s.handleError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	acct, err := s.settler.Open(r.Context(), user, req.Wager)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	seed := s.newSeed()
	lr := s.rounds.add(user, games.GameBlackjack, seed, req.Wager)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.blackjack = s.eng.StartBlackjack(seed)

	s.logger.Info("blackjack started",
		zap.String("round_id", lr.id),
		zap.String("user_id", user),
		zap.String("seed_hash", engine.HashSeed(seed)),
	)
	s.writeJSON(w, http.StatusCreated, s.roundResponse(lr, acct, nil))
}

func (s *Server) handleBlackjackGet(w http.ResponseWriter, r *http.Request) {
	s.withRound(w, r, games.GameBlackjack, func(lr *liveRound) (*settle.Settlement, error) {
		return nil, nil
	})
}

func (s *Server) handleBlackjackHit(w http.ResponseWriter, r *http.Request) {
	s.withRound(w, r, games.GameBlackjack, func(lr *liveRound) (*settle.Settlement, error) {
		return s.advanceBlackjack(r.Context(), lr, lr.blackjack.Hit())
	})
}

func (s *Server) handleBlackjackStand(w http.ResponseWriter, r *http.Request) {
	s.withRound(w, r, games.GameBlackjack, func(lr *liveRound) (*settle.Settlement, error) {
		return s.advanceBlackjack(r.Context(), lr, lr.blackjack.Stand())
	})
}

func (s *Server) advanceBlackjack(ctx context.Context, lr *liveRound, next games.BlackjackState) (*settle.Settlement, error) {
	if !next.Terminal() {
		lr.blackjack = next
		return nil, nil
	}
	st, err := s.settler.Close(ctx, lr.owner, next.Resolve(lr.seed, lr.wager))
	if err != nil {
		return nil, err
	}
	lr.blackjack = next
	s.finish(lr)
	return &st, nil
}

// withRound loads the caller's round named in the URL, runs move on it
// under the round lock and writes the resulting view.
func (s *Server) withRound(w http.ResponseWriter, r *http.Request, game string, move func(*liveRound) (*settle.Settlement, error)) {
	lr, err := s.rounds.get(chi.URLParam(r, "roundID"), userFrom(r.Context()), game)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.done {
		s.handleError(w, r, NewError(ErrTypeRoundFinished, "round is already settled").
			WithContext("round_id", lr.id).
			Build())
		return
	}

	st, err := move(lr)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var acct settle.Account
	if st != nil {
		acct.Balance = st.Balance
	} else if acct, err = s.settler.Balance(r.Context(), lr.owner); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.roundResponse(lr, acct, st))
}

func (s *Server) finish(lr *liveRound) {
	lr.done = true
	s.rounds.remove(lr.id)
}

func (s *Server) roundResponse(lr *liveRound, acct settle.Account, st *settle.Settlement) RoundResponse {
	resp := RoundResponse{
		RoundID:    lr.id,
		Game:       lr.game,
		SeedHash:   engine.HashSeed(lr.seed),
		Wager:      lr.wager,
		Balance:    acct.Balance,
		Finished:   lr.done,
		Settlement: st,
	}
	switch lr.game {
	case games.GameMines:
		resp.State = lr.mines.View()
	case games.GameBlackjack:
		resp.State = lr.blackjack.View()
	}
	if lr.done {
		resp.Seed = lr.seed
	}
	return resp
}
