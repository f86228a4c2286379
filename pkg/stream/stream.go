// Package stream serves committed media files over HTTP with single-range
// partial content support. Streaming is decoupled from acquisition: serving a
// file never takes the content lock, and a client disconnect mid-stream has
// no effect on catalog or store state.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/reelcache/reelcache/internal/logger"
)

// ErrNotFound is returned when the file to serve does not exist.
var ErrNotFound = errors.New("stream source file not found")

// Committed files are immutable at their path, so clients may cache them
// indefinitely.
const cacheControl = "public, max-age=31536000, immutable"

const contentType = "video/mp4"

// byteRange is a resolved inclusive byte span.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange resolves a Range header against a file of the given size.
// Only the first span of a multi-range request is honored. Returns ok=false
// when the header is absent or malformed (malformed ranges degrade to a full
// response rather than an error), and satisfiable=false when the span starts
// past the end of the file.
func parseRange(header string, size int64) (r byteRange, ok, satisfiable bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return byteRange{}, false, false
	}

	// First span only; multi-range requests collapse to their first span.
	if idx := strings.IndexByte(spec, ','); idx >= 0 {
		spec = spec[:idx]
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found || startStr == "" {
		return byteRange{}, false, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false, false
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false, false
		}
	}
	if end > size-1 {
		end = size - 1
	}

	if start >= size {
		return byteRange{}, true, false
	}
	return byteRange{start: start, end: end}, true, true
}

// ServeFile streams the file at path, honoring a single-range Range header.
func ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to open stream source: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat stream source: %w", err)
	}
	size := info.Size()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	span, ok, satisfiable := parseRange(r.Header.Get("Range"), size)
	if !ok {
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		return copyBody(w, r, file, size)
	}

	if !satisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if _, err := file.Seek(span.start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek stream source: %w", err)
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", span.start, span.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(span.length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	return copyBody(w, r, file, span.length())
}

// copyBody streams n bytes to the client. A client disconnect is logged at
// debug and not treated as an error; the response is already in flight.
func copyBody(w http.ResponseWriter, r *http.Request, file *os.File, n int64) error {
	if _, err := io.CopyN(w, file, n); err != nil {
		logger.DebugCtx(r.Context(), "Stream interrupted", "error", err)
	}
	return nil
}
