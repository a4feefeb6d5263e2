package handlers

import (
	"net/http"
	"time"
)

// StatusProvider is the view of the running server the API reports on.
type StatusProvider interface {
	// Ready reports whether the protocol listener accepts connections and
	// the pipeline queues are open.
	Ready() bool

	// Snapshot returns a JSON-serializable view of queue depths and pools.
	Snapshot() any
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	status    StatusProvider
	startTime time.Time
}

// NewHealthHandler creates a new health handler. A nil status makes the
// readiness probe fail.
func NewHealthHandler(status StatusProvider) *HealthHandler {
	return &HealthHandler{
		status:    status,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health. It succeeds whenever the HTTP server answers.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "dittobox",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	if !h.status.Ready() {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("not accepting connections"))
		return
	}
	WriteJSON(w, http.StatusOK, healthyResponse(h.status.Snapshot()))
}
