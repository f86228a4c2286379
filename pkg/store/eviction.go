package store

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/metrics"
)

// capacityThreshold is the fill fraction at which eviction starts.
const capacityThreshold = 0.9

// EvictOne removes the stored file for an entry and marks its catalog row
// inactive. A missing file counts as already evicted; the row is still
// deactivated so catalog and filesystem converge. Returns whether a file was
// actually removed.
func (s *Store) EvictOne(ctx context.Context, entry *catalog.Entry) (bool, error) {
	removed := false

	path := entry.LocalPath
	if path == "" {
		path = s.PathFor(entry.ContentID)
	}

	err := os.Remove(path)
	switch {
	case err == nil:
		removed = true
	case errors.Is(err, os.ErrNotExist):
		// Already gone out-of-band; deactivating the row is the repair.
	default:
		return false, err
	}

	if err := s.catalog.MarkInactive(ctx, entry.ContentID); err != nil {
		return removed, err
	}

	if removed {
		logger.Debug("Evicted content",
			"content_id", entry.ContentID,
			"priority", entry.Priority,
			"size_mb", entry.FileSizeMB,
		)
	}

	return removed, nil
}

// EnsureCapacity runs one eviction pass if the store crossed its capacity
// threshold. Candidates are pulled in eviction order a batch at a time and
// removed until usage is back under threshold or no evictable candidate
// remains. Entries locked for an in-flight acquisition are skipped.
//
// Running out of candidates while still over threshold is logged, not
// returned as an error: capacity is a soft limit and new commits proceed.
func (s *Store) EnsureCapacity(ctx context.Context) (int, error) {
	// Single pass at a time; concurrent triggers coalesce into a no-op.
	select {
	case s.evictMu <- struct{}{}:
		defer func() { <-s.evictMu }()
	default:
		return 0, nil
	}

	usage, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if !usage.OverThreshold() {
		return 0, nil
	}

	logger.Info("Capacity threshold crossed, evicting",
		"used_bytes", usage.UsedBytes,
		"limit_bytes", usage.LimitBytes,
		"file_count", usage.FileCount,
		"max_files", usage.MaxFiles,
	)

	evicted := 0
	skipped := make(map[string]bool)

	for usage.OverThreshold() {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}

		candidates, err := s.catalog.EvictionCandidates(ctx, s.cfg.EvictBatch+len(skipped))
		if err != nil {
			return evicted, err
		}

		progressed := false
		for i := range candidates {
			entry := &candidates[i]
			if skipped[entry.ContentID] {
				continue
			}
			if s.locks != nil && s.locks.Held(entry.ContentID) {
				skipped[entry.ContentID] = true
				continue
			}

			if _, err := s.EvictOne(ctx, entry); err != nil {
				logger.Warn("Eviction failed for entry",
					"content_id", entry.ContentID,
					"error", err,
				)
				skipped[entry.ContentID] = true
				continue
			}
			evicted++
			progressed = true

			// Stop as soon as usage is back under threshold; evicting
			// the rest of the batch would throw away warm entries.
			usage, err = s.Stats(ctx)
			if err != nil {
				return evicted, err
			}
			if !usage.OverThreshold() {
				break
			}
		}
		if !usage.OverThreshold() {
			break
		}
		if !progressed {
			// Candidates exhausted or all locked; capacity is soft.
			logger.Warn("Store over capacity with no evictable candidates",
				"used_bytes", usage.UsedBytes,
				"limit_bytes", usage.LimitBytes,
			)
			break
		}
	}

	if evicted > 0 {
		metrics.RecordEvictions(evicted)
		logger.Info("Eviction pass finished", "evicted", evicted)
	}

	return evicted, nil
}

// RunJanitor periodically enforces capacity until the context is cancelled.
// Commits also trigger opportunistic checks; the janitor catches drift from
// out-of-band file growth between commits.
func (s *Store) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.JanitorInterval)
	defer ticker.Stop()

	logger.Info("Store janitor started", "interval", s.cfg.JanitorInterval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Store janitor stopped")
			return
		case <-ticker.C:
			if _, err := s.EnsureCapacity(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Janitor capacity check failed", "error", err)
			}
		}
	}
}
