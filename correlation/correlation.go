// Package correlation binds a short opaque identifier to one logical unit of
// work. The id travels in a context.Context, so two goroutines or requests
// working from different contexts never observe each other's id.
package correlation

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// Header is the HTTP header used to carry a correlation id across services.
const Header = "X-Request-ID"

type ctxKey struct{}

// New generates a fresh id.
func New() string {
	return xid.New().String()
}

// Set binds id to a derived context. An empty id is replaced by a generated
// one. The bound id is returned.
func Set(ctx context.Context, id string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		id = New()
	}
	return context.WithValue(ctx, ctxKey{}, id), id
}

// Get returns the id bound to ctx, if any.
func Get(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Ensure returns ctx unchanged when it already carries an id, otherwise a
// derived context carrying a generated one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := Get(ctx); ok {
		return ctx, id
	}
	return Set(ctx, "")
}

// FromRequest binds the id found in the request's Header, or a fresh one, to
// the request context.
func FromRequest(r *http.Request) (context.Context, string) {
	return Set(r.Context(), r.Header.Get(Header))
}
