package handlers

import "net/http"

// StatsHandler serves the pipeline statistics.
type StatsHandler struct {
	status StatusProvider
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(status StatusProvider) *StatsHandler {
	return &StatsHandler{status: status}
}

// Get handles GET /api/v1/stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	WriteJSON(w, http.StatusOK, okResponse(h.status.Snapshot()))
}
