// Package middleware contains HTTP middleware for the marquee front end.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/handler"
	"github.com/DukeRupert/marquee/internal/session"
)

// SessionResolver resolves a raw session cookie token to a live session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Session, error)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware loads the viewer's session and guards signed-in routes.
type AuthMiddleware struct {
	sessions SessionResolver
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(sessions SessionResolver, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
		isSecure: isSecure,
	}
}

// WithUser loads the session named by the session cookie into the request
// context and always calls next. An unusable cookie is cleared. Outages of
// the session store leave the request anonymous without clearing the cookie.
//
// Handlers read the viewer with auth.GetUser or auth.GetSession.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := session.TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.sessions.Resolve(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) == domain.EUNAUTHORIZED {
				session.ClearCookie(w, m.isSecure)
			} else {
				m.logger.Error("failed to resolve session", "error", err, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		noteViewer(r.Context(), sess.User.ID)
		ctx := auth.SetSession(r.Context(), sess, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects anonymous requests. HTML requests are redirected to
// /login with a return_to parameter; API and htmx requests get 401 (htmx
// additionally receives an HX-Redirect header).
//
// Use after WithUser:
//
//	mux.Handle("GET /user/favorites", middleware.Stack(authMw.WithUser, authMw.RequireUser)(h))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetSession(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		loginURL := LoginURL(r)

		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", loginURL)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if isAPIRequest(r) {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		http.Redirect(w, r, loginURL, http.StatusSeeOther)
	})
}

// LoginURL returns the login page URL that returns to the current page.
// Mutations return to the page they were posted from.
func LoginURL(r *http.Request) string {
	returnTo := r.URL.Path
	if r.URL.RawQuery != "" {
		returnTo += "?" + r.URL.RawQuery
	}
	if r.Method != http.MethodGet {
		returnTo = refererPath(r)
	}
	return "/login?return_to=" + url.QueryEscape(returnTo)
}

// refererPath returns the same-origin path of the Referer, or "/home".
func refererPath(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return "/home"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
func isAPIRequest(r *http.Request) bool {
	// htmx requests want HTML fragments
	if r.Header.Get("HX-Request") == "true" {
		return false
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided: the first middleware in the
// list is the outermost.
//
//	stack := Stack(loggingMw.Handler, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /user/watchlist", stack(watchlistHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
)
