// Package resolve maps content ids to remote locators. The discovery backend
// that decides which remote asset matches an id is external; this package
// only defines the collaborator contract and client implementations.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reelcache/reelcache/pkg/catalog"
)

// ErrNotAvailable is returned when no remote source can be found for a
// content id. Callers surface it as a not-found with a fallback hint.
var ErrNotAvailable = errors.New("no remote source available for content")

// Locator points at a fetchable remote asset.
type Locator struct {
	// URL is the fetch target. http(s):// and s3:// schemes are understood
	// by the bundled fetchers.
	URL string `json:"url"`
}

// Resolution is a resolved remote source plus the descriptive metadata the
// catalog records at commit time.
type Resolution struct {
	Locator    Locator           `json:"locator"`
	ExternalID string            `json:"external_id"`
	MediaKind  catalog.MediaKind `json:"media_kind"`
	Title      string            `json:"title"`
	Quality    string            `json:"quality"`
	Format     string            `json:"format"`
	Priority   int               `json:"priority"`
}

// Resolver finds the remote source for a content id.
type Resolver interface {
	// Resolve returns the locator and metadata for a content id, or
	// ErrNotAvailable when the backend knows no source for it.
	Resolve(ctx context.Context, contentID string) (Resolution, error)
}

// ParseContentID splits a content id of the form "<kind>_<externalID>" into
// its parts, e.g. "movie_550" into (movie, "550").
func ParseContentID(contentID string) (catalog.MediaKind, string, error) {
	kind, externalID, ok := strings.Cut(contentID, "_")
	if !ok || externalID == "" {
		return "", "", fmt.Errorf("malformed content id %q", contentID)
	}
	mk := catalog.MediaKind(kind)
	if !mk.Valid() {
		return "", "", fmt.Errorf("unknown media kind %q in content id %q", kind, contentID)
	}
	return mk, externalID, nil
}
