package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names for cache operations.
const (
	SpanCacheGet     = "cache.get"
	SpanCacheAcquire = "cache.acquire"
	SpanFetch        = "fetch.download"
)

// Attribute keys for cache spans.
const (
	AttrContentID = "cache.content_id"
	AttrLocator   = "cache.locator"
	AttrOutcome   = "cache.outcome"
	AttrBackend   = "fetch.backend"
)

// ContentID returns an attribute for the requested content id.
func ContentID(id string) attribute.KeyValue {
	return attribute.String(AttrContentID, id)
}

// Locator returns an attribute for the remote source URL.
func Locator(url string) attribute.KeyValue {
	return attribute.String(AttrLocator, url)
}

// Outcome returns an attribute for the cache outcome (hit, miss, stale).
func Outcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

// Backend returns an attribute for the download backend (http, s3).
func Backend(backend string) attribute.KeyValue {
	return attribute.String(AttrBackend, backend)
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}
