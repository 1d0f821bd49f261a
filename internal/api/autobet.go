package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/autobet"
)

const (
	defaultAutobetBets = 100
	maxAutobetBets     = 10000
	maxScriptBytes     = 64 << 10
)

// handleAutobet runs a strategy script to completion within the request.
func (s *Server) handleAutobet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxScriptBytes)
	var req AutobetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		s.handleError(w, r, validation("script", "script is required"))
		return
	}
	if len(req.Script) > maxScriptBytes {
		s.handleError(w, r, validation("script", "script must be at most %d bytes", maxScriptBytes))
		return
	}
	if req.MaxBets == 0 {
		req.MaxBets = defaultAutobetBets
	}
	if req.MaxBets < 1 || req.MaxBets > maxAutobetBets {
		s.handleError(w, r, validation("max_bets", "max_bets must be between 1 and %d", maxAutobetBets))
		return
	}

	userID := userFrom(r.Context())
	rep, err := s.runner.Run(r.Context(), req.Script, autobet.Config{
		Name:          req.Name,
		UserID:        userID,
		Game:          req.Game,
		MaxBets:       req.MaxBets,
		ScriptTimeout: s.scriptTimeout,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	acct, err := s.settler.Balance(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.logger.Info("autobet finished",
		zap.String("user_id", userID),
		zap.String("session_id", rep.SessionID),
		zap.String("reason", string(rep.Reason)),
		zap.Int("bets", rep.Placed),
	)
	s.writeJSON(w, http.StatusOK, AutobetResponse{Report: rep, Balance: acct.Balance})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sessions := []autobet.Session{}
	if s.sessions != nil {
		if sessions, err = s.sessions.ListSessions(r.Context(), userFrom(r.Context()), limit); err != nil {
			s.handleError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.handleError(w, r, autobet.ErrSessionNotFound)
		return
	}
	sess, err := s.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err == nil && sess.UserID != userFrom(r.Context()) {
		err = autobet.ErrSessionNotFound
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}
