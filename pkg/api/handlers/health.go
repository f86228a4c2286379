package handlers

import (
	"net/http"
	"time"

	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	catalog   *catalog.Store
	store     *store.Store
	startedAt time.Time
}

// NewHealthHandler creates a health handler. Either dependency may be nil,
// in which case readiness reports unhealthy.
func NewHealthHandler(cat *catalog.Store, st *store.Store) *HealthHandler {
	return &HealthHandler{
		catalog:   cat,
		store:     st,
		startedAt: time.Now(),
	}
}

// HealthData is the payload of the liveness endpoint.
type HealthData struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
}

// Liveness handles GET /health. Succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(HealthData{
		Service:   "reelcache",
		StartedAt: h.startedAt.UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready. Ready means the catalog answers
// queries and the content store root is scannable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil || h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("cache not initialized"))
		return
	}

	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("catalog unavailable"))
		return
	}

	usage, err := h.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("content store unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"catalog_entries": stats.Count,
		"store_files":     usage.FileCount,
	}))
}
