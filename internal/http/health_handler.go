package http

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: timeout}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, res)
}
