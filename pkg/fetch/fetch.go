// Package fetch downloads remote assets into local temp files. Fetchers are
// the outbound collaborators of the acquisition coordinator; deduplication
// and commit belong to the coordinator, not here.
package fetch

import (
	"context"
	"errors"
)

// ErrFetchFailed is returned on any network, remote or filesystem error
// during a download, including the download timeout. The underlying cause is
// wrapped alongside it.
var ErrFetchFailed = errors.New("remote fetch failed")

// Fetcher downloads the asset at a remote locator into a local temp file and
// returns its path. Implementations clean up the temp file on failure; on
// success the caller owns it. Fetch is not safe to call twice concurrently
// for the same logical asset.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, titleHint string) (string, error)
}
