package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"landdocs/pkg/requestcontext"
)

func TestMiddlewarePinsUTCTime(t *testing.T) {
	var got time.Time
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, got.IsZero())
	assert.Equal(t, time.UTC, got.Location())
}

func TestMiddlewareKeepsInjectedTime(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	var got time.Time
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(requestcontext.WithTime(r.Context(), fixed))
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, fixed, got)
}
