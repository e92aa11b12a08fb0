package ttsserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthPayload lists the fixed /healthz fields: engine/engine_resolved/
// version/started_at/uptime_s. Healthz does not encode this type; it builds
// the body as a map so a backend's Readiness fields sit at the top level.
type healthPayload struct {
	Status         string         `json:"status"`
	Engine         string         `json:"engine"`
	EngineResolved string         `json:"engine_resolved"`
	Version        string         `json:"version"`
	StartedAt      string         `json:"started_at"`
	UptimeSeconds  float64        `json:"uptime_s"`
	Backend        map[string]any `json:"-"`
}

// healthHandler serves /healthz. This gateway's health payload carries
// structured engine-identity and backend-readiness fields rather than a
// generic checker map, so the handler builds its response directly.
type healthHandler struct {
	engine         string
	engineResolved string
	version        string
	startedAt      time.Time
	backendFields  func() map[string]any
}

func newHealthHandler(engine, engineResolved, version string, startedAt time.Time, backendFields func() map[string]any) *healthHandler {
	return &healthHandler{
		engine:         engine,
		engineResolved: engineResolved,
		version:        version,
		startedAt:      startedAt,
		backendFields:  backendFields,
	}
}

func (h *healthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":          "ok",
		"engine":          h.engine,
		"engine_resolved": h.engineResolved,
		"version":         h.version,
		"started_at":      h.startedAt.UTC().Format(time.RFC3339),
		"uptime_s":        time.Since(h.startedAt).Seconds(),
	}
	if h.backendFields != nil {
		for k, v := range h.backendFields() {
			payload[k] = v
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *healthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
