package store

import "errors"

// ErrCommitFailed is returned when a downloaded file could not be moved into
// place or registered in the catalog. Partial files are cleaned up before the
// error is surfaced.
var ErrCommitFailed = errors.New("content store commit failed")
