package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	detector := NewSuspiciousActivityDetector()
	mw := AuthMiddleware("secret-key", nil, detector)(okHandler())

	t.Run("valid key passes", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/admin/nodes", nil)
		req.Header.Set(HeaderAPIKey, "secret-key")
		w := httptest.NewRecorder()

		mw.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/admin/nodes", nil)
		w := httptest.NewRecorder()

		mw.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/admin/nodes", nil)
		req.Header.Set(HeaderAPIKey, "wrong")
		w := httptest.NewRecorder()

		mw.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("public paths bypass auth", func(t *testing.T) {
		for _, path := range PublicPaths {
			req := httptest.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()

			mw.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, "path %s should be public", path)
		}
	})

	t.Run("empty key disables auth", func(t *testing.T) {
		open := AuthMiddleware("", nil, detector)(okHandler())
		req := httptest.NewRequest("POST", "/api/v1/admin/nodes", nil)
		w := httptest.NewRecorder()

		open.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	mw := SecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	assert.Equal(t, HeaderValueNoSniff, w.Header().Get(HeaderContentType))
	assert.Equal(t, HeaderValueSameOrigin, w.Header().Get(HeaderFrameOptions))
	assert.Equal(t, HeaderValueXSSBlock, w.Header().Get(HeaderXSSProtection))
	assert.Equal(t, HeaderValueReferrerStrictOrigin, w.Header().Get(HeaderReferrerPolicy))
}

func TestRateLimitMiddleware(t *testing.T) {
	detector := NewSuspiciousActivityDetector()
	mw := RateLimitMiddleware(nil, detector)(okHandler())

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 1000; i++ {
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Other clients are unaffected.
	other := httptest.NewRequest("GET", "/healthz", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	mw.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractIP(t *testing.T) {
	t.Run("direct connection", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		assert.Equal(t, "10.0.0.1", extractIP(req, nil))
	})

	t.Run("forwarded header ignored from untrusted source", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set(HeaderForwardedFor, "1.2.3.4")
		assert.Equal(t, "10.0.0.1", extractIP(req, nil))
	})

	t.Run("forwarded header honored from trusted proxy", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set(HeaderForwardedFor, "1.2.3.4, 5.6.7.8")
		assert.Equal(t, "5.6.7.8", extractIP(req, []string{"10.0.0.1"}))
	})
}
