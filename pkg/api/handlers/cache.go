package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/internal/telemetry"
	"github.com/reelcache/reelcache/pkg/acquire"
	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/fetch"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/resolve"
	"github.com/reelcache/reelcache/pkg/store"
	"github.com/reelcache/reelcache/pkg/stream"
)

// Fallback hints tell the client how to degrade when the cache cannot serve.
// "direct" means play straight from the remote source; "skip" means no source
// exists at all.
const (
	fallbackDirect = "direct"
	fallbackSkip   = "skip"
)

// CacheHandler handles the cache endpoints: content delivery, status,
// cleanup and listing.
type CacheHandler struct {
	catalog     *catalog.Store
	store       *store.Store
	coordinator *acquire.Coordinator
	resolver    resolve.Resolver
	httpFetcher *fetch.HTTPFetcher
	s3Fetcher   *fetch.S3Fetcher
}

// NewCacheHandler creates a cache handler. s3Fetcher may be nil; s3://
// locators then fail at fetch time.
func NewCacheHandler(
	cat *catalog.Store,
	st *store.Store,
	coordinator *acquire.Coordinator,
	resolver resolve.Resolver,
	httpFetcher *fetch.HTTPFetcher,
	s3Fetcher *fetch.S3Fetcher,
) *CacheHandler {
	return &CacheHandler{
		catalog:     cat,
		store:       st,
		coordinator: coordinator,
		resolver:    resolver,
		httpFetcher: httpFetcher,
		s3Fetcher:   s3Fetcher,
	}
}

// Get handles GET /cache/{contentID}.
//
// Hit: the entry is active and its file exists; bump access stats and stream.
// Stale: the entry is active but its file is gone; mark it inactive and fall
// through to the miss path. Miss: resolve a remote source, acquire it through
// the coordinator and stream the committed file.
func (h *CacheHandler) Get(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	ctx := logger.WithContentID(r.Context(), contentID)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCacheGet,
		trace.WithAttributes(telemetry.ContentID(contentID)))
	defer span.End()

	entry, err := h.catalog.FindActive(ctx, contentID)
	if err == nil {
		if h.store.Exists(contentID) {
			// Best-effort: a failed stat bump must never fail the read.
			if err := h.catalog.BumpAccess(ctx, contentID); err != nil {
				logger.WarnCtx(ctx, "Failed to bump access stats", "error", err)
			}
			metrics.RecordCacheHit()
			telemetry.SetAttributes(ctx, telemetry.Outcome("hit"))
			h.serve(w, r.WithContext(ctx), entry.LocalPath, contentID)
			return
		}

		// Active row without a file: self-heal and reacquire.
		logger.WarnCtx(ctx, "Stored file missing, marking entry inactive",
			"path", entry.LocalPath,
		)
		if err := h.catalog.MarkInactive(ctx, contentID); err != nil {
			telemetry.RecordError(ctx, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse("failed to repair catalog entry"))
			return
		}
	} else if !errors.Is(err, catalog.ErrEntryNotFound) {
		telemetry.RecordError(ctx, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("catalog lookup failed"))
		return
	}

	metrics.RecordCacheMiss()
	telemetry.SetAttributes(ctx, telemetry.Outcome("miss"))

	resolution, err := h.resolver.Resolve(ctx, contentID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		if errors.Is(err, resolve.ErrNotAvailable) {
			writeJSON(w, http.StatusNotFound, errorResponseWithData(
				"no remote source available",
				fallbackData(contentID, fallbackSkip),
			))
			return
		}
		logger.ErrorCtx(ctx, "Resolver failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponseWithData(
			"failed to resolve remote source",
			fallbackData(contentID, fallbackSkip),
		))
		return
	}
	telemetry.SetAttributes(ctx, telemetry.Locator(resolution.Locator.URL))

	fetcher := fetch.ForLocator(resolution.Locator.URL, h.httpFetcher, h.s3Fetcher)
	path, err := h.coordinator.AcquireAndStore(ctx, contentID, resolution, fetcher)
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeAcquisitionError(w, contentID, err)
		return
	}

	h.serve(w, r.WithContext(ctx), path, contentID)
}

// serve streams a committed file, mapping a vanished file to a not-found
// response when nothing has been written yet.
func (h *CacheHandler) serve(w http.ResponseWriter, r *http.Request, path, contentID string) {
	if err := stream.ServeFile(w, r, path); err != nil {
		logger.ErrorCtx(r.Context(), "Failed to stream content", "error", err)
		if errors.Is(err, stream.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponseWithData(
				"content file not found",
				fallbackData(contentID, fallbackDirect),
			))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to stream content"))
	}
}

func writeAcquisitionError(w http.ResponseWriter, contentID string, err error) {
	switch {
	case errors.Is(err, acquire.ErrLockTimeout):
		// Another caller is still downloading; the client may retry or
		// play directly from the source meanwhile.
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, errorResponseWithData(
			"acquisition in progress, retry later",
			fallbackData(contentID, fallbackDirect),
		))
	default:
		writeJSON(w, http.StatusBadGateway, errorResponseWithData(
			err.Error(),
			fallbackData(contentID, fallbackDirect),
		))
	}
}

func fallbackData(contentID, fallback string) map[string]string {
	return map[string]string{
		"content_id": contentID,
		"fallback":   fallback,
	}
}

// StatusData is the payload of GET /cache/status.
type StatusData struct {
	FileCount  int                    `json:"file_count"`
	UsedBytes  uint64                 `json:"used_bytes"`
	UsedGB     float64                `json:"used_gb"`
	LimitBytes uint64                 `json:"limit_bytes"`
	LimitGB    float64                `json:"limit_gb"`
	MaxFiles   int                    `json:"max_files"`
	Catalog    catalog.AggregateStats `json:"catalog"`
}

// Status handles GET /cache/status.
func (h *CacheHandler) Status(w http.ResponseWriter, r *http.Request) {
	usage, err := h.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to scan content store"))
		return
	}

	catalogStats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to aggregate catalog stats"))
		return
	}

	const gb = 1 << 30
	writeJSON(w, http.StatusOK, okResponse(StatusData{
		FileCount:  usage.FileCount,
		UsedBytes:  usage.UsedBytes,
		UsedGB:     float64(usage.UsedBytes) / gb,
		LimitBytes: usage.LimitBytes,
		LimitGB:    float64(usage.LimitBytes) / gb,
		MaxFiles:   usage.MaxFiles,
		Catalog:    catalogStats,
	}))
}

// CleanupData is the payload of POST /cache/cleanup.
type CleanupData struct {
	Evicted int `json:"evicted"`
}

// Cleanup handles POST /cache/cleanup: runs one capacity pass immediately
// and reports how many entries it removed. A store under its threshold
// evicts nothing.
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.store.EnsureCapacity(r.Context())
	if err != nil {
		logger.ErrorCtx(r.Context(), "Manual eviction failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("eviction failed"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(CleanupData{Evicted: evicted}))
}

// ListData is the payload of GET /cache/list.
type ListData struct {
	Entries []catalog.Entry `json:"entries"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// List handles GET /cache/list?limit=&offset=: active entries, most recently
// accessed first.
func (h *CacheHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.catalog.ListActive(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list catalog entries"))
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}

	writeJSON(w, http.StatusOK, okResponse(ListData{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
