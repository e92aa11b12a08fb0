package orchserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthHandler serves /healthz for the orchestrator: a liveness-only
// shape, no readiness probe — the orchestrator has no persistent
// dependency to check at rest, it only dials SGLang and the TTS gateway
// per chat session.
type healthHandler struct {
	startedAt time.Time
}

func newHealthHandler(startedAt time.Time) *healthHandler {
	return &healthHandler{startedAt: startedAt}
}

func (h *healthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":     "ok",
		"started_at": h.startedAt.UTC().Format(time.RFC3339),
		"uptime_s":   time.Since(h.startedAt).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func (h *healthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
}
