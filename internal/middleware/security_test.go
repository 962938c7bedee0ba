package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveSecurity(mw *SecurityHeadersMiddleware) http.Header {
	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Header()
}

func TestSecurityHeaders(t *testing.T) {
	h := serveSecurity(NewSecurityHeadersMiddleware(false, nil))

	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))

	csp := h.Get("Content-Security-Policy")
	assert.Contains(t, csp, "frame-src https://www.youtube-nocookie.com https://www.youtube.com https://player.vimeo.com;")
	assert.Contains(t, csp, "img-src 'self' data:;")
	assert.Contains(t, csp, "frame-ancestors 'none'")
}

func TestSecurityHeaders_Secure(t *testing.T) {
	h := serveSecurity(NewSecurityHeadersMiddleware(true, []string{}))

	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "frame-src 'none';")
}
