package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// HeaderName is the HTTP header carrying the correlation id, both inbound and
// on calls to the general ledger.
const HeaderName = "X-Correlation-Id"

// maxIDLen bounds ids accepted from callers.
const maxIDLen = 128

type ctxKey struct{}

// FromContext returns the request's correlation id, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. An empty id leaves ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx carrying a correlation id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

// Sanitize accepts a caller supplied id when it is short printable ASCII
// without spaces, and returns "" otherwise.
func Sanitize(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return ""
		}
	}
	return id
}
