package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports journal and component state. A paused
// component degrades the deployment; a failing journal makes it unhealthy.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"journal":    s.checkJournalHealth(r),
		"run_engine": s.checkPaused("run engine", s.world.Runs.Paused()),
		"fees":       s.checkPaused("fee settlement", s.world.Fees.Paused()),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	statusCode := http.StatusOK
	if overall == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        systemInfo(),
		RequestID:     requestID,
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// checkJournalHealth compares the journal's last seq with the bus.
func (s *Server) checkJournalHealth(r *http.Request) HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy}
	if s.journal == nil {
		check.Status = HealthStatusDegraded
		check.Message = "journal not configured"
	} else if last, err := s.journal.LastSeq(r.Context()); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else if bus := s.world.Bus.Seq(); last < bus {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("journal behind bus: journal=%d bus=%d", last, bus)
	} else {
		check.Message = fmt.Sprintf("seq=%d", last)
	}
	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkPaused(name string, paused bool) HealthCheck {
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     name + " running",
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if paused {
		check.Status = HealthStatusDegraded
		check.Message = name + " paused by owner"
	}
	return check
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
