// Package api exposes the games over HTTP. It is the caller of the game
// engine: it generates seeds, keeps in-progress rounds, and moves money
// through the settler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/autobet"
	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/settle"
)

// UserHeader carries the authenticated user ID set by the upstream
// auth layer.
const UserHeader = "X-User-ID"

const maxUserIDLen = 128

// Accounts opens accounts on first use and reports storage health.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID string, opening decimal.Decimal) (settle.Account, error)
	Ping(ctx context.Context) error
}

// Server handles HTTP requests
type Server struct {
	eng      *games.Engine
	settler  *settle.Settler
	accounts Accounts
	rounds   *roundTable
	runner   *autobet.Runner
	sessions autobet.SessionStore
	logger   *zap.Logger

	opening       decimal.Decimal
	timeout       time.Duration
	scriptTimeout time.Duration
	newSeed       func() string
	startTime     time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOpeningBalance sets the balance new accounts start with.
func WithOpeningBalance(d decimal.Decimal) Option {
	return func(s *Server) { s.opening = d }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithSeedSource replaces the per-round seed generator.
func WithSeedSource(f func() string) Option {
	return func(s *Server) { s.newSeed = f }
}

// WithSessions stores autobet runs and serves them back.
func WithSessions(store autobet.SessionStore) Option {
	return func(s *Server) { s.sessions = store }
}

// WithScriptTimeout bounds each call into an autobet script.
func WithScriptTimeout(d time.Duration) Option {
	return func(s *Server) { s.scriptTimeout = d }
}

// NewServer creates a new API server
func NewServer(eng *games.Engine, settler *settle.Settler, accounts Accounts, opts ...Option) *Server {
	s := &Server{
		eng:       eng,
		settler:   settler,
		accounts:  accounts,
		rounds:    newRoundTable(),
		logger:    zap.NewNop(),
		opening:   decimal.NewFromInt(1000),
		timeout:   15 * time.Second,
		newSeed:   engine.NewSeed,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	runnerOpts := []autobet.Option{
		autobet.WithLogger(s.logger),
		autobet.WithSeedSource(s.newSeed),
	}
	if s.sessions != nil {
		runnerOpts = append(runnerOpts, autobet.WithSessions(s.sessions))
	}
	s.runner = autobet.NewRunner(eng, settler, runnerOpts...)
	s.logger = s.logger.Named("api")
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", s.handleListGames)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/balance", s.handleBalance)
			r.Get("/history", s.handleHistory)
			r.Post("/verify", s.handleVerify)

			r.Post("/dice", s.handleDice)
			r.Post("/limbo", s.handleLimbo)

			r.Route("/mines", func(r chi.Router) {
				r.Post("/", s.handleMinesStart)
				r.Get("/{roundID}", s.handleMinesGet)
				r.Post("/{roundID}/reveal", s.handleMinesReveal)
				r.Post("/{roundID}/cashout", s.handleMinesCashOut)
			})

			r.Route("/blackjack", func(r chi.Router) {
				r.Post("/", s.handleBlackjackStart)
				r.Get("/{roundID}", s.handleBlackjackGet)
				r.Post("/{roundID}/hit", s.handleBlackjackHit)
				r.Post("/{roundID}/stand", s.handleBlackjackStand)
			})

			r.Route("/autobet", func(r chi.Router) {
				r.Post("/", s.handleAutobet)
				r.Get("/sessions", s.handleListSessions)
				r.Get("/sessions/{sessionID}", s.handleGetSession)
			})
		})
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type userKey struct{}

// requireUser reads the caller's identity and opens the account on first
// sight.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" || len(userID) > maxUserIDLen {
			s.handleError(w, r, NewError(ErrTypeMissingUser, UserHeader+" header is required").
				WithContext("max_length", maxUserIDLen).
				Build())
			return
		}
		if _, err := s.accounts.EnsureAccount(r.Context(), userID, s.opening); err != nil {
			s.handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", r.RemoteAddr),
		)
	})
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Server-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}
