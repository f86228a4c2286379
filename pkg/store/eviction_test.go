package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/reelcache/reelcache/pkg/catalog"
)

// seedEntry writes a stored file of n bytes and registers it as an active
// catalog entry with the given priority.
func seedEntry(t *testing.T, s *Store, cat *catalog.Store, contentID string, n, priority int) {
	t.Helper()
	path := s.PathFor(contentID)
	if err := os.WriteFile(path, make([]byte, n), 0644); err != nil {
		t.Fatalf("failed to seed file for %s: %v", contentID, err)
	}
	_, err := cat.Upsert(context.Background(), contentID, catalog.UpsertFields{
		MediaKind: catalog.MediaKindMovie,
		LocalPath: path,
		Priority:  priority,
	})
	if err != nil {
		t.Fatalf("failed to seed catalog entry for %s: %v", contentID, err)
	}
}

func TestEvictOne(t *testing.T) {
	ctx := context.Background()

	t.Run("removes file and deactivates entry", func(t *testing.T) {
		s, cat := createTestStore(t, Config{}, nil)
		seedEntry(t, s, cat, "movie_1", 1000, 1)

		entry, err := cat.FindActive(ctx, "movie_1")
		if err != nil {
			t.Fatalf("seed entry missing: %v", err)
		}

		removed, err := s.EvictOne(ctx, entry)
		if err != nil {
			t.Fatalf("evict failed: %v", err)
		}
		if !removed {
			t.Error("expected file removal to be reported")
		}
		if s.Exists("movie_1") {
			t.Error("expected file to be gone")
		}
		if _, err := cat.FindActive(ctx, "movie_1"); !errors.Is(err, catalog.ErrEntryNotFound) {
			t.Errorf("expected inactive entry, got %v", err)
		}
	})

	t.Run("missing file still deactivates entry", func(t *testing.T) {
		s, cat := createTestStore(t, Config{}, nil)
		seedEntry(t, s, cat, "movie_1", 1000, 1)
		if err := os.Remove(s.PathFor("movie_1")); err != nil {
			t.Fatalf("failed to remove file out-of-band: %v", err)
		}

		entry, err := cat.FindActive(ctx, "movie_1")
		if err != nil {
			t.Fatalf("seed entry missing: %v", err)
		}

		removed, err := s.EvictOne(ctx, entry)
		if err != nil {
			t.Fatalf("evict failed: %v", err)
		}
		if removed {
			t.Error("expected no file removal for already-missing file")
		}
		if _, err := cat.FindActive(ctx, "movie_1"); !errors.Is(err, catalog.ErrEntryNotFound) {
			t.Errorf("expected inactive entry, got %v", err)
		}
	})
}

func TestEnsureCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("no-op under threshold", func(t *testing.T) {
		s, cat := createTestStore(t, Config{MaxBytes: 1 << 20}, nil)
		seedEntry(t, s, cat, "movie_1", 1000, 1)

		evicted, err := s.EnsureCapacity(ctx)
		if err != nil {
			t.Fatalf("capacity check failed: %v", err)
		}
		if evicted != 0 {
			t.Errorf("expected no evictions, got %d", evicted)
		}
		if !s.Exists("movie_1") {
			t.Error("expected file to survive")
		}
	})

	t.Run("evicts lowest priority tier first", func(t *testing.T) {
		// Four files against a limit of four trips the 90% count
		// threshold; one eviction brings the count back under it.
		s, cat := createTestStore(t, Config{MaxFiles: 4}, nil)
		seedEntry(t, s, cat, "movie_keep_a", 1000, 3)
		seedEntry(t, s, cat, "movie_keep_b", 1000, 2)
		seedEntry(t, s, cat, "movie_victim", 1000, 1)
		seedEntry(t, s, cat, "movie_keep_c", 1000, 2)

		evicted, err := s.EnsureCapacity(ctx)
		if err != nil {
			t.Fatalf("capacity check failed: %v", err)
		}
		if evicted != 1 {
			t.Fatalf("expected 1 eviction, got %d", evicted)
		}
		if s.Exists("movie_victim") {
			t.Error("expected lowest-priority entry to be evicted")
		}
		for _, id := range []string{"movie_keep_a", "movie_keep_b", "movie_keep_c"} {
			if !s.Exists(id) {
				t.Errorf("expected %s to survive", id)
			}
		}
	})

	t.Run("evicts until under byte threshold", func(t *testing.T) {
		// 5000 bytes against a 4000-byte limit; threshold is 3600, so
		// two 1000-byte evictions are needed.
		s, cat := createTestStore(t, Config{MaxBytes: 4000}, nil)
		for _, id := range []string{"movie_1", "movie_2", "movie_3", "movie_4", "movie_5"} {
			seedEntry(t, s, cat, id, 1000, 1)
		}

		evicted, err := s.EnsureCapacity(ctx)
		if err != nil {
			t.Fatalf("capacity check failed: %v", err)
		}
		if evicted != 2 {
			t.Fatalf("expected 2 evictions, got %d", evicted)
		}

		usage, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if usage.OverThreshold() {
			t.Errorf("still over threshold after eviction: %+v", usage)
		}
	})

	t.Run("skips locked entries", func(t *testing.T) {
		s, cat := createTestStore(t, Config{MaxFiles: 4}, lockSet{"movie_victim": true})
		seedEntry(t, s, cat, "movie_victim", 1000, 1)
		seedEntry(t, s, cat, "movie_next", 1000, 2)
		seedEntry(t, s, cat, "movie_keep_a", 1000, 3)
		seedEntry(t, s, cat, "movie_keep_b", 1000, 3)

		evicted, err := s.EnsureCapacity(ctx)
		if err != nil {
			t.Fatalf("capacity check failed: %v", err)
		}
		if evicted != 1 {
			t.Fatalf("expected 1 eviction, got %d", evicted)
		}
		if !s.Exists("movie_victim") {
			t.Error("locked entry must not be evicted")
		}
		if s.Exists("movie_next") {
			t.Error("expected next candidate to be evicted instead")
		}
	})

	t.Run("over capacity with all entries locked is not an error", func(t *testing.T) {
		s, cat := createTestStore(t, Config{MaxFiles: 2}, lockSet{"movie_1": true, "movie_2": true})
		seedEntry(t, s, cat, "movie_1", 1000, 1)
		seedEntry(t, s, cat, "movie_2", 1000, 1)

		evicted, err := s.EnsureCapacity(ctx)
		if err != nil {
			t.Fatalf("expected soft over-capacity, got error: %v", err)
		}
		if evicted != 0 {
			t.Errorf("expected 0 evictions, got %d", evicted)
		}
		if !s.Exists("movie_1") || !s.Exists("movie_2") {
			t.Error("locked entries must survive")
		}
	})
}
