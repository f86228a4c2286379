// Package acquire deduplicates concurrent downloads: for each content id at
// most one fetch-then-commit sequence runs at a time, and every other caller
// either reuses its result or fails within a bounded wait.
package acquire

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/internal/telemetry"
	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/fetch"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/resolve"
	"github.com/reelcache/reelcache/pkg/store"
)

// Options tunes the coordinator's two timeouts. The lock wait is deliberately
// much shorter than the download timeout so a waiter fails fast while the
// downloader is slow but alive.
type Options struct {
	// LockTimeout bounds how long a caller waits for another acquisition
	// of the same id before failing with ErrLockTimeout.
	LockTimeout time.Duration

	// DownloadTimeout bounds the fetch step end to end.
	DownloadTimeout time.Duration
}

// ApplyDefaults fills unset timeouts.
func (o *Options) ApplyDefaults() {
	if o.LockTimeout == 0 {
		o.LockTimeout = 30 * time.Second
	}
	if o.DownloadTimeout == 0 {
		o.DownloadTimeout = fetch.DefaultDownloadTimeout
	}
}

// Coordinator runs acquisitions against one catalog and content store pair.
type Coordinator struct {
	catalog *catalog.Store
	store   *store.Store
	locks   *LockTable
	opts    Options
}

// NewCoordinator creates a coordinator. locks is shared with the store's
// eviction pass so in-flight acquisitions are never evicted.
func NewCoordinator(cat *catalog.Store, st *store.Store, locks *LockTable, opts Options) *Coordinator {
	opts.ApplyDefaults()
	return &Coordinator{
		catalog: cat,
		store:   st,
		locks:   locks,
		opts:    opts,
	}
}

// Locks exposes the lock table for wiring into the store.
func (c *Coordinator) Locks() *LockTable {
	return c.locks
}

// AcquireAndStore ensures the asset for a content id is present locally and
// returns its path.
//
// The fast path returns an existing verified entry without touching the lock.
// Otherwise the caller takes the per-id lock (waiting up to LockTimeout),
// re-checks the catalog under the lock, and only then fetches and commits.
// The lock is released on every path out; a wedged id would block all future
// acquisitions for it.
func (c *Coordinator) AcquireAndStore(ctx context.Context, contentID string, resolution resolve.Resolution, fetcher fetch.Fetcher) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCacheAcquire,
		trace.WithAttributes(
			telemetry.ContentID(contentID),
			telemetry.Locator(resolution.Locator.URL),
		))
	defer span.End()

	// Advisory fast path; the authoritative check happens under the lock.
	if path, ok := c.cached(ctx, contentID); ok {
		return path, nil
	}

	if !c.locks.TryAcquire(contentID) {
		metrics.RecordLockWait()
		logger.DebugCtx(ctx, "Waiting for in-flight acquisition",
			"content_id", contentID,
			"timeout", c.opts.LockTimeout.String(),
		)
		if err := c.locks.AcquireWithin(ctx, contentID, c.opts.LockTimeout); err != nil {
			telemetry.RecordError(ctx, err)
			if err == ErrLockTimeout {
				metrics.RecordAcquisition("lock_timeout")
				return "", fmt.Errorf("acquiring %q: %w", contentID, ErrLockTimeout)
			}
			return "", err
		}
	}
	defer c.locks.Release(contentID)

	// Another caller may have finished while this one waited.
	if path, ok := c.cached(ctx, contentID); ok {
		metrics.RecordAcquisition("reused")
		return path, nil
	}

	logger.InfoCtx(ctx, "Acquiring content",
		"content_id", contentID,
		"title", resolution.Title,
		"locator", resolution.Locator.URL,
	)

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.DownloadTimeout)
	tempPath, err := fetcher.Fetch(fetchCtx, resolution.Locator.URL, resolution.Title)
	cancel()
	if err != nil {
		metrics.RecordAcquisition("fetch_failed")
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("%w: fetching %q: %w", ErrAcquisitionFailed, contentID, err)
	}

	result, err := c.store.Commit(ctx, contentID, tempPath, catalog.UpsertFields{
		ExternalID: resolution.ExternalID,
		MediaKind:  resolution.MediaKind,
		Title:      resolution.Title,
		Quality:    resolution.Quality,
		Format:     resolution.Format,
		Priority:   resolution.Priority,
	})
	if err != nil {
		metrics.RecordAcquisition("commit_failed")
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("%w: committing %q: %w", ErrAcquisitionFailed, contentID, err)
	}

	metrics.RecordAcquisition("success")
	return result.Path, nil
}

// cached returns the path of an active, file-verified entry. An active entry
// whose file is gone is flipped inactive before the miss is reported, so the
// catalog stops claiming it even when the refetch that follows fails.
func (c *Coordinator) cached(ctx context.Context, contentID string) (string, bool) {
	entry, err := c.catalog.FindActive(ctx, contentID)
	if err != nil {
		return "", false
	}
	if !c.store.Exists(contentID) {
		// Best-effort: a failed deactivation must not block the refetch.
		if err := c.catalog.MarkInactive(ctx, contentID); err != nil {
			logger.WarnCtx(ctx, "Failed to deactivate stale catalog entry",
				"content_id", contentID,
				"error", err,
			)
		}
		return "", false
	}
	return entry.LocalPath, true
}
