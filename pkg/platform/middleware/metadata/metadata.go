// Package metadata copies caller-supplied labels from request headers into
// the context. Labels are informational: operators are not authenticated.
package metadata

import (
	"net/http"
	"strings"

	"rmr/pkg/requestcontext"
)

const (
	HeaderOperator  = "X-Operator"
	maxOperatorSize = 128
)

// Operator records the X-Operator header, if any, for review and manual
// reconcile audit fields.
func Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := strings.TrimSpace(r.Header.Get(HeaderOperator))
		if len(op) > maxOperatorSize {
			op = op[:maxOperatorSize]
		}
		if op != "" {
			r = r.WithContext(requestcontext.WithOperator(r.Context(), op))
		}
		next.ServeHTTP(w, r)
	})
}
