package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
)

// HTTPResolver queries a discovery service over HTTP. The service is expected
// to answer GET {base}/resolve?content_id=... with a Resolution JSON body, or
// 404 when it knows no source.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the given discovery base URL.
// timeout 0 means 10 seconds.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, contentID string) (Resolution, error) {
	endpoint := fmt.Sprintf("%s/resolve?content_id=%s", r.baseURL, url.QueryEscape(contentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to build resolve request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolver request for %q failed: %w", contentID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// Decoded below.
	case http.StatusNotFound:
		return Resolution{}, fmt.Errorf("resolving %q: %w", contentID, ErrNotAvailable)
	default:
		return Resolution{}, fmt.Errorf("resolver returned status %d for %q", resp.StatusCode, contentID)
	}

	var resolution Resolution
	if err := json.NewDecoder(resp.Body).Decode(&resolution); err != nil {
		return Resolution{}, fmt.Errorf("failed to decode resolver response for %q: %w", contentID, err)
	}
	if resolution.Locator.URL == "" {
		return Resolution{}, fmt.Errorf("resolving %q: %w", contentID, ErrNotAvailable)
	}

	logger.DebugCtx(ctx, "Resolved remote source",
		"content_id", contentID,
		"title", resolution.Title,
	)

	return resolution, nil
}
