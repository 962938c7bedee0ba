package handler

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// BreakerReporter exposes the state of the upstream circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// HealthHandler reports liveness and the health of the movie API.
type HealthHandler struct {
	upstream BreakerReporter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(upstream BreakerReporter) *HealthHandler {
	return &HealthHandler{upstream: upstream}
}

type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// Health always answers 200 while the process serves requests. status is
// "degraded" when the breaker has cut off the movie API.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Upstream: h.upstream.BreakerState()}
	if resp.Upstream == "open" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}
