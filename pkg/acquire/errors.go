package acquire

import "errors"

// ErrLockTimeout is returned when another acquisition held the content lock
// past the wait window. Retryable: the holder is still making progress.
var ErrLockTimeout = errors.New("timed out waiting for content lock")

// ErrAcquisitionFailed is returned when the fetch-then-commit sequence failed
// after the lock was taken. The underlying fetch or commit error is wrapped
// alongside it.
var ErrAcquisitionFailed = errors.New("content acquisition failed")
