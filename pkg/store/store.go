// Package store implements the filesystem content store: one media file per
// content id under a single root, with usage accounting and priority/recency
// based eviction against the catalog.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/metrics"
)

// FileExt is the fixed extension of stored files. The store serves a single
// encoding profile, so the extension never varies per entry.
const FileExt = ".mp4"

// tempDirName holds in-flight downloads below the store root so commits stay
// on one filesystem and rename is atomic.
const tempDirName = "tmp"

// LockChecker reports whether a content id is currently locked for an
// in-flight acquisition. Eviction skips locked ids.
type LockChecker interface {
	Held(contentID string) bool
}

// Config contains content store configuration.
type Config struct {
	// Root is the storage directory (required).
	Root string

	// MaxBytes caps the total size of stored files. 0 disables the size limit.
	MaxBytes bytesize.ByteSize

	// MaxFiles caps the number of stored files. 0 disables the count limit.
	MaxFiles int

	// EvictBatch is how many eviction candidates are pulled per round.
	EvictBatch int

	// JanitorInterval is the period of the background capacity check.
	JanitorInterval time.Duration
}

// ApplyDefaults fills unset limits with defaults.
func (c *Config) ApplyDefaults() {
	if c.EvictBatch == 0 {
		c.EvictBatch = 10
	}
	if c.JanitorInterval == 0 {
		c.JanitorInterval = 4 * time.Hour
	}
}

// Store is the filesystem content store.
type Store struct {
	cfg     Config
	catalog *catalog.Store
	locks   LockChecker

	// evictMu serializes capacity passes; janitor and post-commit checks
	// must not race each other over the same candidates.
	evictMu chan struct{}
}

// New creates the store, creating the root and temp directories if needed.
// locks may be nil; eviction then skips no entries.
func New(cfg Config, cat *catalog.Store, locks LockChecker) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("content store root is required")
	}
	cfg.ApplyDefaults()

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Root, tempDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		catalog: cat,
		locks:   locks,
		evictMu: make(chan struct{}, 1),
	}
	return s, nil
}

// PathFor returns the storage path for a content id. Pure: distinct ids map
// to distinct paths under the same fixed extension.
func (s *Store) PathFor(contentID string) string {
	return filepath.Join(s.cfg.Root, contentID+FileExt)
}

// TempDir returns the directory for in-flight downloads.
func (s *Store) TempDir() string {
	return filepath.Join(s.cfg.Root, tempDirName)
}

// Exists reports whether the file for a content id is present on disk.
func (s *Store) Exists(contentID string) bool {
	info, err := os.Stat(s.PathFor(contentID))
	return err == nil && !info.IsDir()
}

// CommitResult describes a completed commit.
type CommitResult struct {
	Path   string
	SizeMB float64
}

// Commit moves a downloaded temp file into place and registers it in the
// catalog as one logical unit.
//
// The file is copied to a .partial sibling, fsynced, then renamed over the
// final path, so a crash never leaves a half-written file under the served
// name. If the catalog write fails the copied file is removed; an active
// catalog row must never reference a missing file. A capacity check runs
// after the commit without blocking the caller.
func (s *Store) Commit(ctx context.Context, contentID, tempPath string, fields catalog.UpsertFields) (CommitResult, error) {
	finalPath := s.PathFor(contentID)
	partialPath := finalPath + ".partial"

	size, err := copyFile(tempPath, partialPath)
	if err != nil {
		_ = os.Remove(partialPath)
		return CommitResult{}, fmt.Errorf("%w: staging %q: %v", ErrCommitFailed, contentID, err)
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		_ = os.Remove(partialPath)
		return CommitResult{}, fmt.Errorf("%w: renaming %q: %v", ErrCommitFailed, contentID, err)
	}

	// Temp file is consumed regardless of catalog outcome.
	_ = os.Remove(tempPath)

	sizeMB := float64(size) / float64(bytesize.MiB)
	fields.LocalPath = finalPath
	fields.FileSizeMB = sizeMB

	if _, err := s.catalog.Upsert(ctx, contentID, fields); err != nil {
		_ = os.Remove(finalPath)
		return CommitResult{}, fmt.Errorf("%w: cataloging %q: %v", ErrCommitFailed, contentID, err)
	}

	logger.InfoCtx(ctx, "Committed content",
		"content_id", contentID,
		"path", finalPath,
		"size_mb", sizeMB,
	)

	// Deferred capacity enforcement; the commit itself never blocks on
	// eviction. WithoutCancel keeps the pass alive past the request.
	go func(ctx context.Context) {
		if _, err := s.EnsureCapacity(ctx); err != nil {
			logger.Warn("Post-commit capacity check failed", "error", err)
		}
	}(context.WithoutCancel(ctx))

	return CommitResult{Path: finalPath, SizeMB: sizeMB}, nil
}

// copyFile copies src to dst, fsyncs, and verifies the byte count against the
// source size. Cross-device moves are not atomic, so commits always copy.
func copyFile(src, dst string) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	if written != srcInfo.Size() {
		return 0, fmt.Errorf("short copy: wrote %d of %d bytes", written, srcInfo.Size())
	}
	return written, nil
}

// Usage describes current store occupancy against configured limits.
type Usage struct {
	FileCount  int    `json:"file_count"`
	UsedBytes  uint64 `json:"used_bytes"`
	LimitBytes uint64 `json:"limit_bytes"`
	MaxFiles   int    `json:"max_files"`
}

// OverThreshold reports whether either dimension crossed 90% of its limit.
func (u Usage) OverThreshold() bool {
	if u.LimitBytes > 0 && float64(u.UsedBytes) >= capacityThreshold*float64(u.LimitBytes) {
		return true
	}
	if u.MaxFiles > 0 && float64(u.FileCount) >= capacityThreshold*float64(u.MaxFiles) {
		return true
	}
	return false
}

// Stats scans the store root and returns current usage. Only files with the
// store's extension count; foreign files in the directory are ignored.
func (s *Store) Stats(ctx context.Context) (Usage, error) {
	usage := Usage{
		LimitBytes: s.cfg.MaxBytes.Uint64(),
		MaxFiles:   s.cfg.MaxFiles,
	}

	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to scan store root: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Usage{}, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		usage.FileCount++
		usage.UsedBytes += uint64(info.Size())
	}

	metrics.SetStoreUsage(usage.UsedBytes, usage.FileCount)

	return usage, nil
}
