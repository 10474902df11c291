// Package requesttime pins "now" once per request so every timestamp and
// eligibility cut-off computed while serving it agrees.
package requesttime

import (
	"net/http"
	"time"

	"rmr/pkg/requestcontext"
)

// Clock lets tests freeze the time the middleware stamps.
type Clock func() time.Time

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an explicit clock.
func WithClock(clock Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
