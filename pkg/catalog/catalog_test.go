package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

// createTestStore creates an in-memory SQLite catalog for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testFields(title string) UpsertFields {
	return UpsertFields{
		ExternalID: "550",
		MediaKind:  MediaKindMovie,
		Title:      title,
		LocalPath:  "/var/cache/reelcache/movie_550.mp4",
		FileSizeMB: 42.5,
		Quality:    "720p",
		Format:     "mp4",
		Priority:   1,
	}
}

func TestNew(t *testing.T) {
	t.Run("default config uses sqlite", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Type != DatabaseTypeSQLite {
			t.Errorf("expected SQLite, got %s", config.Type)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		_, err := New(&Config{Type: "invalid"})
		if err == nil {
			t.Error("expected error for invalid config")
		}
	})

	t.Run("creates in-memory store", func(t *testing.T) {
		store := createTestStore(t)
		if store == nil {
			t.Error("expected non-nil store")
		}
	})
}

func TestUpsert(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("creates new entry", func(t *testing.T) {
		entry, err := store.Upsert(ctx, "movie_550", testFields("Fight Club"))
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if entry.ID == "" {
			t.Error("expected generated id")
		}
		if !entry.IsActive {
			t.Error("expected upserted entry to be active")
		}
		if entry.FileSizeMB != 42.5 {
			t.Errorf("expected 42.5 MB, got %f", entry.FileSizeMB)
		}
	})

	t.Run("updates existing entry in place", func(t *testing.T) {
		fields := testFields("Fight Club")
		fields.FileSizeMB = 99.0
		fields.LocalPath = "/var/cache/reelcache/movie_550.mp4"

		entry, err := store.Upsert(ctx, "movie_550", fields)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if entry.FileSizeMB != 99.0 {
			t.Errorf("expected overwritten size 99.0, got %f", entry.FileSizeMB)
		}

		// Still exactly one row for the id
		found, err := store.Find(ctx, "movie_550")
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if found.FileSizeMB != 99.0 {
			t.Errorf("expected persisted size 99.0, got %f", found.FileSizeMB)
		}
	})

	t.Run("converges onto a row inserted concurrently", func(t *testing.T) {
		// Simulates the losing side of two first-commits racing: the row
		// already exists by the time this Upsert's insert runs, so the
		// conflict clause must turn it into an update of the winner's row.
		winner := Entry{
			ID:           "11111111-2222-3333-4444-555555555555",
			ContentID:    "movie_808",
			Title:        "Winner",
			FileSizeMB:   10.0,
			AccessCount:  7,
			LastAccessed: time.Now(),
			IsActive:     true,
		}
		if err := store.db.Create(&winner).Error; err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}

		fields := testFields("Loser Becomes Update")
		fields.FileSizeMB = 20.0

		entry, err := store.Upsert(ctx, "movie_808", fields)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if entry.ID != winner.ID {
			t.Errorf("expected winner row id %s, got %s", winner.ID, entry.ID)
		}
		if entry.FileSizeMB != 20.0 {
			t.Errorf("expected updated size 20.0, got %f", entry.FileSizeMB)
		}
		if entry.AccessCount != 7 {
			t.Errorf("expected access count preserved, got %d", entry.AccessCount)
		}
	})

	t.Run("reactivates inactive entry", func(t *testing.T) {
		if err := store.MarkInactive(ctx, "movie_550"); err != nil {
			t.Fatalf("MarkInactive failed: %v", err)
		}

		entry, err := store.Upsert(ctx, "movie_550", testFields("Fight Club"))
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if !entry.IsActive {
			t.Error("expected reactivated entry")
		}
		if entry.LocalPath == "" {
			t.Error("expected local path to be restored")
		}
	})
}

func TestFindActive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "movie_550", testFields("Fight Club")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	t.Run("finds active entry", func(t *testing.T) {
		entry, err := store.FindActive(ctx, "movie_550")
		if err != nil {
			t.Fatalf("FindActive failed: %v", err)
		}
		if entry.ContentID != "movie_550" {
			t.Errorf("unexpected content id %q", entry.ContentID)
		}
	})

	t.Run("filters inactive entries", func(t *testing.T) {
		if err := store.MarkInactive(ctx, "movie_550"); err != nil {
			t.Fatalf("MarkInactive failed: %v", err)
		}

		_, err := store.FindActive(ctx, "movie_550")
		if !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("expected ErrEntryNotFound, got %v", err)
		}

		// Find still sees the soft-deleted row
		entry, err := store.Find(ctx, "movie_550")
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if entry.IsActive {
			t.Error("expected inactive entry")
		}
		if entry.LocalPath != "" {
			t.Errorf("expected cleared local path, got %q", entry.LocalPath)
		}
	})

	t.Run("missing id returns ErrEntryNotFound", func(t *testing.T) {
		_, err := store.FindActive(ctx, "movie_999")
		if !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("expected ErrEntryNotFound, got %v", err)
		}
	})
}

func TestBumpAccess(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "movie_550", testFields("Fight Club")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	before, _ := store.Find(ctx, "movie_550")

	for i := 0; i < 3; i++ {
		if err := store.BumpAccess(ctx, "movie_550"); err != nil {
			t.Fatalf("BumpAccess failed: %v", err)
		}
	}

	after, err := store.Find(ctx, "movie_550")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if after.AccessCount != before.AccessCount+3 {
		t.Errorf("expected access count %d, got %d", before.AccessCount+3, after.AccessCount)
	}
	if !after.LastAccessed.After(before.LastAccessed) && !after.LastAccessed.Equal(before.LastAccessed) {
		t.Error("expected last accessed to move forward")
	}
}

func TestEvictionCandidates(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)

	seed := []struct {
		contentID    string
		priority     int
		lastAccessed time.Time
		accessCount  int64
	}{
		{"movie_1", 1, old, 5},
		{"movie_2", 1, recent, 5},
		{"movie_3", 2, old, 1},
	}

	for _, s := range seed {
		fields := testFields("seed")
		fields.Priority = s.priority
		if _, err := store.Upsert(ctx, s.contentID, fields); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		// Backdate access stats directly; Upsert always stamps now.
		err := store.db.Model(&Entry{}).
			Where("content_id = ?", s.contentID).
			Updates(map[string]any{
				"last_accessed": s.lastAccessed,
				"access_count":  s.accessCount,
			}).Error
		if err != nil {
			t.Fatalf("failed to backdate entry: %v", err)
		}
	}

	candidates, err := store.EvictionCandidates(ctx, 10)
	if err != nil {
		t.Fatalf("EvictionCandidates failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	// Priority-1 oldest first, then priority-1 recent, priority-2 last.
	wantOrder := []string{"movie_1", "movie_2", "movie_3"}
	for i, want := range wantOrder {
		if candidates[i].ContentID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, candidates[i].ContentID)
		}
	}
}

func TestStats(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Count != 0 || stats.TotalSizeMB != 0 {
			t.Errorf("expected zero stats, got %+v", stats)
		}
	})

	t.Run("aggregates active entries only", func(t *testing.T) {
		fields := testFields("a")
		fields.FileSizeMB = 10
		if _, err := store.Upsert(ctx, "movie_1", fields); err != nil {
			t.Fatal(err)
		}
		fields.FileSizeMB = 30
		if _, err := store.Upsert(ctx, "movie_2", fields); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Upsert(ctx, "movie_3", fields); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkInactive(ctx, "movie_3"); err != nil {
			t.Fatal(err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Count != 2 {
			t.Errorf("expected 2 active entries, got %d", stats.Count)
		}
		if stats.TotalSizeMB != 40 {
			t.Errorf("expected 40 MB total, got %f", stats.TotalSizeMB)
		}
	})
}

func TestListActive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"movie_1", "movie_2", "movie_3"} {
		if _, err := store.Upsert(ctx, id, testFields(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkInactive(ctx, "movie_2"); err != nil {
		t.Fatal(err)
	}

	entries, total, err := store.ListActive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ContentID == "movie_2" {
			t.Error("inactive entry leaked into listing")
		}
	}

	page, total, err := store.ListActive(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListActive paged failed: %v", err)
	}
	if total != 2 || len(page) != 1 {
		t.Errorf("expected paged result 1 of 2, got %d of %d", len(page), total)
	}
}
