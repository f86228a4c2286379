package logger

import "context"

// Field keys used across the cache daemon so log output stays greppable.
const (
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"
	KeyContentID = "content_id"
	KeyClientIP  = "client_ip"
)

// LogContext carries per-request identification that should appear on every
// log line emitted while handling that request.
type LogContext struct {
	TraceID   string
	SpanID    string
	RequestID string
	ContentID string
	ClientIP  string
}

type logContextKey struct{}

// NewContext returns a context carrying the given LogContext.
func NewContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext extracts the LogContext from a context, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// WithContentID returns a context whose LogContext has the content id set.
// A missing LogContext is created so callers can tag deep call chains without
// caring whether HTTP middleware ran first.
func WithContentID(ctx context.Context, contentID string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		return NewContext(ctx, &LogContext{ContentID: contentID})
	}
	clone := *lc
	clone.ContentID = contentID
	return NewContext(ctx, &clone)
}

// appendContextFields prepends LogContext fields to args so they appear first.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))

	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.RequestID != "" {
		ctxArgs = append(ctxArgs, KeyRequestID, lc.RequestID)
	}
	if lc.ContentID != "" {
		ctxArgs = append(ctxArgs, KeyContentID, lc.ContentID)
	}
	if lc.ClientIP != "" {
		ctxArgs = append(ctxArgs, KeyClientIP, lc.ClientIP)
	}

	return append(ctxArgs, args...)
}
