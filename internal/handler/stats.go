package handler

import (
	"net/http"
	"time"

	"github.com/dukerupert/raven/internal/session"
)

type StatsHandler struct {
	sessions *session.Registry
}

func NewStatsHandler(sessions *session.Registry) *StatsHandler {
	return &StatsHandler{sessions: sessions}
}

// Online handles GET /api/stats/online. CountActive sweeps expired
// sessions before counting, so this read also cleans the table.
func (h *StatsHandler) Online(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"online": h.sessions.CountActive()})
}

// Health handles GET /health. Unauthenticated on purpose: load balancers
// and the launcher's connectivity probe both hit it.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
