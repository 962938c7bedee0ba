// Package csrf provides CSRF protection using the double-submit cookie pattern.
//
// A random token is set in a cookie and repeated in every form (or, for htmx
// requests, in the X-CSRF-Token header). Unsafe requests are rejected unless
// both copies match. A cross-site attacker can make the browser send the
// cookie but cannot read it, so it cannot supply the matching form value.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "csrf_token"

	// FormFieldName is the name of the CSRF token form field.
	FormFieldName = "csrf_token"

	// HeaderName carries the token on htmx requests.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes for the token (32 bytes = 256 bits).
	TokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie (12 hours).
	CookieMaxAge = 12 * 3600
)

// =============================================================================
// Token Generation
// =============================================================================

// GenerateToken generates a cryptographically secure random token.
//
// The token is 32 bytes of random data, base64 URL-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// =============================================================================
// Token Validation
// =============================================================================

// ValidateToken compares the cookie token with the submitted token in
// constant time.
func ValidateToken(cookieToken, formToken string) bool {
	if cookieToken == "" || formToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}

// ValidateRequest validates the CSRF token of a request. The submitted token
// is read from the X-CSRF-Token header, falling back to the form field.
func ValidateRequest(r *http.Request) bool {
	submitted := r.Header.Get(HeaderName)
	if submitted == "" {
		submitted = r.FormValue(FormFieldName)
	}
	return ValidateToken(GetTokenFromRequest(r), submitted)
}

// =============================================================================
// Cookie Management
// =============================================================================

// SetCookie sets the CSRF token cookie on the response.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetTokenFromRequest retrieves the CSRF token from the request cookie.
// Returns empty string if cookie doesn't exist.
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// =============================================================================
// Context
// =============================================================================

type tokenKey struct{}

// Token returns the token Protect placed in the request context. Templates
// render it into forms.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// WithToken returns a context carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// =============================================================================
// Middleware
// =============================================================================

// Protect issues the CSRF cookie and rejects unsafe requests without a
// matching token.
type Protect struct {
	isSecure bool
	logger   *slog.Logger
}

// NewProtect creates the CSRF middleware.
func NewProtect(isSecure bool, logger *slog.Logger) *Protect {
	return &Protect{isSecure: isSecure, logger: logger}
}

// Handler ensures every request has a token in its context. POST, PUT, PATCH
// and DELETE requests must echo the cookie token or receive 403.
func (p *Protect) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !ValidateRequest(r) {
				p.logger.Warn("csrf token mismatch",
					"method", r.Method,
					"path", r.URL.Path,
				)
				http.Error(w, "Invalid or missing CSRF token. Reload the page and try again.", http.StatusForbidden)
				return
			}
		}

		token := GetTokenFromRequest(r)
		if token == "" {
			var err error
			token, err = GenerateToken()
			if err != nil {
				p.logger.Error("failed to generate csrf token", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			SetCookie(w, token, p.isSecure)
		}

		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}
