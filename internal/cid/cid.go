package cid

import "context"

// ContextKey is the type used for storing the correlation id in context to
// avoid collisions.
type ContextKey struct{}

// HeaderName is the HTTP header used to propagate the correlation id.
// Incoming requests that already carry this header keep their id; otherwise
// the middleware generates a fresh KSUID.
const HeaderName = "X-Chat-CID"

// AttributeName is the span attribute key used to attach the correlation id
// to traces.
const AttributeName = "chat.cid"

// WithCID returns a new context containing the provided correlation id.
func WithCID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, ContextKey{}, cid)
}

// FromContext extracts the correlation id from context, if present.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ContextKey{}).(string); ok {
		return v
	}
	return ""
}

// AddHeaderFromContext adds the correlation header to the provided headers
// map if the context contains a correlation id.
func AddHeaderFromContext(headers map[string][]string, ctx context.Context) {
	if headers == nil {
		return
	}
	if cid := FromContext(ctx); cid != "" {
		headers[HeaderName] = []string{cid}
	}
}
