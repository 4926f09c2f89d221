package tracing

import (
	"context"
	"net/http"
)

var (
	traceHeaderKey = traceHeader("trace_header")
	traceIDKey     = traceID("trace_id")
)

type traceHeader string
type traceID string

// ContextWithTraceID creates a new context from parent, and adds
// tracing 'traceHeader' and 'traceID' in context values
//
// when passing this tracing context (or a children) http requests
// made by oidcreq (discovery, jwks_uri) will carry the
// "'traceHeader': 'traceId'" request header
func ContextWithTraceID(parent context.Context, traceHeader, traceID string) context.Context {
	ctx := context.WithValue(parent, traceHeaderKey, traceHeader)
	return context.WithValue(ctx, traceIDKey, traceID)
}

// AddHeadersFromContext set the trace header on req
// if ctx was created with [tracing.ContextWithTraceID]
func AddHeadersFromContext(ctx context.Context, req *http.Request) {
	header, traceId := FromContext(ctx)
	if header == "" || traceId == "" {
		return
	}

	req.Header.Set(header, traceId)
}

// FromContext returns the trace header name and trace id
// stored in ctx, or empty strings
func FromContext(ctx context.Context) (header string, id string) {
	return getContextKey(ctx, traceHeaderKey), getContextKey(ctx, traceIDKey)
}

// Transport is an [http.RoundTripper] adding the trace header
// of the request context. Used for http calls that are not
// made directly by oidcreq (e.g. jwks_uri refresh)
type Transport struct {
	Base http.RoundTripper

	// Header and ID are used when the request
	// context does not carry tracing values
	Header string
	ID     string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	header, id := FromContext(req.Context())
	if header == "" || id == "" {
		header, id = t.Header, t.ID
	}

	if header != "" && id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(header, id)
	}

	return base.RoundTrip(req)
}

func getContextKey(ctx context.Context, key any) string {
	val := ""
	if v, ok := ctx.Value(key).(string); ok {
		val = v
	}
	return val
}
