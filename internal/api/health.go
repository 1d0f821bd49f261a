package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/pf-casino/internal/games"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a health check response
type HealthCheckResponse struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Version    string                 `json:"version"`
	GitCommit  string                 `json:"git_commit,omitempty"`
	BuildTime  string                 `json:"build_time,omitempty"`
	Uptime     string                 `json:"uptime"`
	Drawer     string                 `json:"drawer"`
	OpenRounds int                    `json:"open_rounds"`
	Checks     map[string]HealthCheck `json:"checks"`
	System     SystemInfo             `json:"system"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthCheck{
		"games":    s.checkGames(),
		"database": s.checkDatabase(r),
	}

	status := HealthStatusHealthy
	for _, c := range checks {
		if c.Status != HealthStatusHealthy {
			status = HealthStatusUnhealthy
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Drawer:     s.eng.Drawer().Name(),
		OpenRounds: s.rounds.len(),
		Checks:     checks,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemoryAlloc:   mem.Alloc,
		},
		RequestID: middleware.GetReqID(r.Context()),
	}

	code := http.StatusOK
	if status != HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

// checkGames checks the registry and that the drawer returns a value in
// [0, 1).
func (s *Server) checkGames() HealthCheck {
	start := time.Now()
	if len(games.ListGames()) == 0 {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "no games registered"}
	}
	if v := s.eng.Drawer().Draw("health", 0); v < 0 || v >= 1 {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "drawer out of range"}
	}
	return HealthCheck{Status: HealthStatusHealthy, Duration: time.Since(start).String()}
}

func (s *Server) checkDatabase(r *http.Request) HealthCheck {
	start := time.Now()
	if err := s.accounts.Ping(r.Context()); err != nil {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
	}
	return HealthCheck{Status: HealthStatusHealthy, Duration: time.Since(start).String()}
}
