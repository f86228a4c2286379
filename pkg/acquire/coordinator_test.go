package acquire

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/fetch"
	"github.com/reelcache/reelcache/pkg/resolve"
	"github.com/reelcache/reelcache/pkg/store"
)

// fakeFetcher writes a file of fixed size into dir and counts invocations.
type fakeFetcher struct {
	dir   string
	size  int
	delay time.Duration
	err   error
	calls atomic.Int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL, titleHint string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	tmp, err := os.CreateTemp(f.dir, "fake-*.download")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(make([]byte, f.size)); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

func testResolution() resolve.Resolution {
	return resolve.Resolution{
		Locator:    resolve.Locator{URL: "https://origin.example.com/550.mp4"},
		ExternalID: "550",
		MediaKind:  catalog.MediaKindMovie,
		Title:      "Fight Club",
		Quality:    "720p",
		Format:     "mp4",
		Priority:   1,
	}
}

func createTestCoordinator(t *testing.T, opts Options) (*Coordinator, *catalog.Store, *store.Store) {
	t.Helper()

	cat, err := catalog.New(&catalog.Config{
		Type: catalog.DatabaseTypeSQLite,
		SQLite: catalog.SQLiteConfig{
			Path: ":memory:",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	locks := NewLockTable()
	st, err := store.New(store.Config{Root: t.TempDir()}, cat, locks)
	require.NoError(t, err)

	return NewCoordinator(cat, st, locks, opts), cat, st
}

func TestAcquireAndStore(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fetches, commits and returns the final path", func(t *testing.T) {
		coord, cat, st := createTestCoordinator(t, Options{})
		fetcher := &fakeFetcher{dir: st.TempDir(), size: 1024 * 1024}

		path, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
		require.NoError(t, err)
		assert.Equal(t, st.PathFor("movie_550"), path)
		assert.Equal(t, int64(1), fetcher.calls.Load())
		assert.False(t, coord.Locks().Held("movie_550"), "lock must be released")

		entry, err := cat.FindActive(ctx, "movie_550")
		require.NoError(t, err)
		assert.Equal(t, path, entry.LocalPath)
		assert.Equal(t, "Fight Club", entry.Title)
	})

	t.Run("hit returns cached path without fetching", func(t *testing.T) {
		coord, _, st := createTestCoordinator(t, Options{})
		fetcher := &fakeFetcher{dir: st.TempDir(), size: 1024}

		first, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
		require.NoError(t, err)

		second, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), fetcher.calls.Load(), "cached content must not be refetched")
	})

	t.Run("concurrent callers trigger exactly one fetch", func(t *testing.T) {
		coord, _, st := createTestCoordinator(t, Options{LockTimeout: 5 * time.Second})
		fetcher := &fakeFetcher{dir: st.TempDir(), size: 1024, delay: 100 * time.Millisecond}

		const callers = 10
		paths := make([]string, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				paths[i], errs[i] = coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(1), fetcher.calls.Load(), "duplicate downloads must be deduplicated")
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i], "caller %d", i)
			assert.Equal(t, paths[0], paths[i], "caller %d", i)
		}
		assert.Equal(t, 0, coord.Locks().Len(), "all locks must be released")
	})

	t.Run("re-acquisition after file loss overwrites the entry", func(t *testing.T) {
		coord, cat, st := createTestCoordinator(t, Options{})

		_, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), &fakeFetcher{dir: st.TempDir(), size: 1024 * 1024})
		require.NoError(t, err)

		// Lose the file out-of-band; the fast path must not trust the
		// catalog row alone.
		require.NoError(t, os.Remove(st.PathFor("movie_550")))

		path, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), &fakeFetcher{dir: st.TempDir(), size: 3 * 1024 * 1024})
		require.NoError(t, err)
		assert.True(t, st.Exists("movie_550"))

		entry, err := cat.FindActive(ctx, "movie_550")
		require.NoError(t, err)
		assert.Equal(t, path, entry.LocalPath)
		assert.Equal(t, 3.0, entry.FileSizeMB, "second commit must overwrite the size")

		entries, count, err := cat.ListActive(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "re-acquisition must not duplicate entries")
		assert.Len(t, entries, 1)
	})

	t.Run("waiter fails with ErrLockTimeout while holder is slow", func(t *testing.T) {
		coord, _, st := createTestCoordinator(t, Options{LockTimeout: 2 * time.Second})
		slow := &fakeFetcher{dir: st.TempDir(), size: 1024, delay: time.Minute}

		holderCtx, stopHolder := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = coord.AcquireAndStore(holderCtx, "movie_550", testResolution(), slow)
		}()

		// Let the holder take the lock before the waiter arrives.
		require.Eventually(t, func() bool {
			return coord.Locks().Held("movie_550")
		}, time.Second, 10*time.Millisecond)

		start := time.Now()
		_, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), &fakeFetcher{dir: st.TempDir(), size: 1024})
		elapsed := time.Since(start)

		require.ErrorIs(t, err, ErrLockTimeout)
		assert.GreaterOrEqual(t, elapsed, 2*time.Second, "must not fail immediately")
		assert.Less(t, elapsed, 4*time.Second, "must not block past the lock timeout")

		stopHolder()
		wg.Wait()
	})

	t.Run("failed refetch leaves the stale entry deactivated", func(t *testing.T) {
		coord, cat, st := createTestCoordinator(t, Options{})
		fetcher := &fakeFetcher{dir: st.TempDir(), size: 1024}

		path, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
		require.NoError(t, err)
		require.NoError(t, os.Remove(path))

		// The file is gone and the refetch fails; the row must not stay
		// active pointing at a path that does not exist.
		broken := &fakeFetcher{dir: st.TempDir(), err: fetch.ErrFetchFailed}
		_, err = coord.AcquireAndStore(ctx, "movie_550", testResolution(), broken)
		require.ErrorIs(t, err, ErrAcquisitionFailed)

		_, err = cat.FindActive(ctx, "movie_550")
		assert.ErrorIs(t, err, catalog.ErrEntryNotFound, "stale row must be inactive")

		entry, err := cat.Find(ctx, "movie_550")
		require.NoError(t, err)
		assert.False(t, entry.IsActive)
		assert.Empty(t, entry.LocalPath, "deactivation must clear the path")

		_, count, err := cat.ListActive(ctx, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, count, "stale row must not be listed as active")
	})

	t.Run("fetch failure releases the lock and mutates nothing", func(t *testing.T) {
		coord, cat, st := createTestCoordinator(t, Options{})
		fetcher := &fakeFetcher{dir: st.TempDir(), err: fetch.ErrFetchFailed}

		_, err := coord.AcquireAndStore(ctx, "movie_550", testResolution(), fetcher)
		require.ErrorIs(t, err, ErrAcquisitionFailed)
		require.ErrorIs(t, err, fetch.ErrFetchFailed)

		assert.False(t, coord.Locks().Held("movie_550"), "lock must be released on failure")
		_, err = cat.FindActive(ctx, "movie_550")
		assert.ErrorIs(t, err, catalog.ErrEntryNotFound, "no partial catalog mutation")
		assert.False(t, st.Exists("movie_550"))
	})
}
