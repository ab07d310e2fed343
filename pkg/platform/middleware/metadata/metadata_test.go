package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"landdocs/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("first forwarded address wins", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		assert.Equal(t, "10.0.0.1", ClientIPFromRequest(r))
	})

	t.Run("real ip header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Real-IP", " 192.168.1.9 ")
		assert.Equal(t, "192.168.1.9", ClientIPFromRequest(r))
	})

	t.Run("remote addr without port", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "127.0.0.1:5555"
		assert.Equal(t, "127.0.0.1", ClientIPFromRequest(r))
	})

	t.Run("ipv6 remote addr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "[::1]:5555"
		assert.Equal(t, "::1", ClientIPFromRequest(r))
	})
}

func TestClientMetadataPopulatesContext(t *testing.T) {
	var gotUA, gotIP string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = requestcontext.UserAgent(r.Context())
		gotIP = requestcontext.ClientIP(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "curl/8.0")
	r.Header.Set("X-Real-IP", "172.16.0.4")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "curl/8.0", gotUA)
	assert.Equal(t, "172.16.0.4", gotIP)
}
