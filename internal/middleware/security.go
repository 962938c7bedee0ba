package middleware

import (
	"net/http"
	"strings"
)

// TrailerFrameHosts are the video players the movie pages embed.
var TrailerFrameHosts = []string{
	"https://www.youtube-nocookie.com",
	"https://www.youtube.com",
	"https://player.vimeo.com",
}

// SecurityHeadersMiddleware adds HTTP security headers to all responses.
type SecurityHeadersMiddleware struct {
	isSecure bool // Whether to enable HTTPS-specific headers (true in production)
	csp      string
}

// NewSecurityHeadersMiddleware creates a new security headers middleware.
// Set isSecure to true in production to enable HSTS. frameHosts are allowed
// as iframe sources; nil means TrailerFrameHosts.
func NewSecurityHeadersMiddleware(isSecure bool, frameHosts []string) *SecurityHeadersMiddleware {
	if frameHosts == nil {
		frameHosts = TrailerFrameHosts
	}
	return &SecurityHeadersMiddleware{
		isSecure: isSecure,
		csp:      buildCSP(frameHosts),
	}
}

// Handler returns middleware that sets security headers on all responses.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if m.isSecure {
			// max-age=31536000 = 1 year
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		h.Set("Content-Security-Policy", m.csp)
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}

// buildCSP constructs the Content-Security-Policy header value. Posters are
// served through /img, so images stay same-origin.
func buildCSP(frameHosts []string) string {
	frameSrc := "'none'"
	if len(frameHosts) > 0 {
		frameSrc = strings.Join(frameHosts, " ")
	}
	return "default-src 'self'; " +
		"script-src 'self' https://unpkg.com 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"font-src 'self'; " +
		"connect-src 'self'; " +
		"frame-src " + frameSrc + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"
}
