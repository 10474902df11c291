package metadata

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rmr/pkg/requestcontext"
)

func TestOperator(t *testing.T) {
	capture := func(header string) string {
		var got string
		h := Operator(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = requestcontext.Operator(r.Context())
		}))
		req := httptest.NewRequest(http.MethodPost, "/duplicates/x/review", nil)
		if header != "" {
			req.Header.Set(HeaderOperator, header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	assert.Equal(t, "", capture(""))
	assert.Equal(t, "sam", capture("  sam "))
	assert.Len(t, capture(strings.Repeat("x", 500)), maxOperatorSize)
}
