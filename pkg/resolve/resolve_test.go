package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelcache/reelcache/pkg/catalog"
)

func TestParseContentID(t *testing.T) {
	tests := []struct {
		name      string
		contentID string
		wantKind  catalog.MediaKind
		wantExtID string
		wantErr   bool
	}{
		{"movie id", "movie_550", catalog.MediaKindMovie, "550", false},
		{"episode id", "episode_1399", catalog.MediaKindEpisode, "1399", false},
		{"missing separator", "movie550", "", "", true},
		{"empty external id", "movie_", "", "", true},
		{"unknown kind", "song_42", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, extID, err := ParseContentID(tt.contentID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.contentID)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.wantKind || extID != tt.wantExtID {
				t.Errorf("got (%s, %s), want (%s, %s)", kind, extID, tt.wantKind, tt.wantExtID)
			}
		})
	}
}

func TestHTTPResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes resolution from discovery service", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("content_id"); got != "movie_550" {
				t.Errorf("unexpected content_id %q", got)
			}
			_ = json.NewEncoder(w).Encode(Resolution{
				Locator:    Locator{URL: "https://origin.example.com/550.mp4"},
				ExternalID: "550",
				MediaKind:  catalog.MediaKindMovie,
				Title:      "Fight Club",
			})
		}))
		defer server.Close()

		resolution, err := NewHTTPResolver(server.URL, 0).Resolve(ctx, "movie_550")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if resolution.Locator.URL != "https://origin.example.com/550.mp4" {
			t.Errorf("unexpected locator %q", resolution.Locator.URL)
		}
		if resolution.Title != "Fight Club" {
			t.Errorf("unexpected title %q", resolution.Title)
		}
	})

	t.Run("404 maps to ErrNotAvailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewHTTPResolver(server.URL, 0).Resolve(ctx, "movie_550")
		if !errors.Is(err, ErrNotAvailable) {
			t.Fatalf("expected ErrNotAvailable, got %v", err)
		}
	})

	t.Run("empty locator maps to ErrNotAvailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Resolution{Title: "no source"})
		}))
		defer server.Close()

		_, err := NewHTTPResolver(server.URL, 0).Resolve(ctx, "movie_550")
		if !errors.Is(err, ErrNotAvailable) {
			t.Fatalf("expected ErrNotAvailable, got %v", err)
		}
	})
}

func TestTemplateResolver(t *testing.T) {
	ctx := context.Background()
	r := NewTemplateResolver("https://origin.example.com/{media_kind}/{external_id}.mp4", "720p", "mp4", 1)

	t.Run("expands template placeholders", func(t *testing.T) {
		resolution, err := r.Resolve(ctx, "movie_550")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if resolution.Locator.URL != "https://origin.example.com/movie/550.mp4" {
			t.Errorf("unexpected locator %q", resolution.Locator.URL)
		}
		if resolution.MediaKind != catalog.MediaKindMovie || resolution.ExternalID != "550" {
			t.Errorf("unexpected metadata %+v", resolution)
		}
	})

	t.Run("malformed id is not available", func(t *testing.T) {
		_, err := r.Resolve(ctx, "garbage")
		if !errors.Is(err, ErrNotAvailable) {
			t.Fatalf("expected ErrNotAvailable, got %v", err)
		}
	})
}
