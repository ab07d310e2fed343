// Package requesttime pins a single "now" per request so document timestamps,
// audit events and rendered dates agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"landdocs/pkg/requestcontext"
)

// Middleware stores the request start time, in UTC, in the context. A time
// already present, for example one injected by a test, is kept.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := ctx.Value(requestcontext.ContextKeyRequestTime).(time.Time); !ok {
			ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
