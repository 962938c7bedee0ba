package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/session"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubResolver struct {
	sess  *domain.Session
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sess, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() *domain.Session {
	return &domain.Session{
		ID:          uuid.New(),
		User:        domain.User{ID: "user-1", Email: "ada@example.com", Name: "Ada"},
		AccessToken: "api-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func withCookie(r *http.Request, token string) *http.Request {
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	return r
}

func clearedCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			return c
		}
	}
	return nil
}

// =============================================================================
// WithUser
// =============================================================================

func TestWithUser_NoCookie(t *testing.T) {
	resolver := &stubResolver{}
	mw := NewAuthMiddleware(resolver, newTestLogger(), false)

	var called bool
	h := mw.WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, auth.GetUser(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/home", nil))

	assert.True(t, called)
	assert.Zero(t, resolver.calls)
}

func TestWithUser_ValidSession(t *testing.T) {
	sess := testSession()
	mw := NewAuthMiddleware(&stubResolver{sess: sess}, newTestLogger(), false)

	h := mw.WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		require.NotNil(t, user)
		assert.Equal(t, "user-1", user.ID)
		assert.Equal(t, "raw-token", auth.SessionToken(r.Context()))
		assert.Equal(t, "api-token", auth.AccessToken(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/home", nil), "raw-token"))

	assert.Nil(t, clearedCookie(rec))
}

func TestWithUser_InvalidSessionClearsCookie(t *testing.T) {
	resolver := &stubResolver{err: domain.Unauthorized("SessionManager.Resolve", "Your session has expired.")}
	mw := NewAuthMiddleware(resolver, newTestLogger(), false)

	var called bool
	h := mw.WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, auth.GetSession(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/home", nil), "stale"))

	assert.True(t, called)
	assert.NotNil(t, clearedCookie(rec))
}

func TestWithUser_StoreOutageKeepsCookie(t *testing.T) {
	resolver := &stubResolver{err: domain.Internal(errors.New("db down"), "SessionManager.Resolve", "lookup failed")}
	mw := NewAuthMiddleware(resolver, newTestLogger(), false)

	var called bool
	h := mw.WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, auth.GetSession(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, "/home", nil), "token"))

	assert.True(t, called)
	assert.Nil(t, clearedCookie(rec))
}

// =============================================================================
// RequireUser
// =============================================================================

func TestRequireUser(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("signed in passes through", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{}, newTestLogger(), false)
		req := httptest.NewRequest(http.MethodGet, "/user/favorites", nil)
		req = req.WithContext(auth.SetSession(req.Context(), testSession(), "token"))

		rec := httptest.NewRecorder()
		mw.RequireUser(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("browser is redirected to login", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{}, newTestLogger(), false)
		req := httptest.NewRequest(http.MethodGet, "/user/favorites?page=2", nil)

		rec := httptest.NewRecorder()
		mw.RequireUser(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login?return_to=%2Fuser%2Ffavorites%3Fpage%3D2", rec.Header().Get("Location"))
	})

	t.Run("htmx gets HX-Redirect", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{}, newTestLogger(), false)
		req := httptest.NewRequest(http.MethodPost, "/movies/42/favorite", nil)
		req.Header.Set("HX-Request", "true")
		req.Header.Set("Referer", "http://example.com/movies/42")

		rec := httptest.NewRecorder()
		mw.RequireUser(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "/login?return_to=%2Fmovies%2F42", rec.Header().Get("HX-Redirect"))
	})

	t.Run("api request gets 401", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{}, newTestLogger(), false)
		req := httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)
		req.Header.Set("Accept", "application/json")

		rec := httptest.NewRecorder()
		mw.RequireUser(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	})
}

func TestLoginURL(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		referer string
		want    string
	}{
		{"get keeps query", http.MethodGet, "/search?query=alien&page=3", "", "/login?return_to=%2Fsearch%3Fquery%3Dalien%26page%3D3"},
		{"post uses referer", http.MethodPost, "/movies/7/watchlist", "http://example.com/movies/7?tab=cast", "/login?return_to=%2Fmovies%2F7%3Ftab%3Dcast"},
		{"post foreign referer", http.MethodPost, "/movies/7/watchlist", "https://evil.example.org/phish", "/login?return_to=%2Fhome"},
		{"post no referer", http.MethodPost, "/movies/7/watchlist", "", "/login?return_to=%2Fhome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://example.com"+tt.target, nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			assert.Equal(t, tt.want, LoginURL(req))
		})
	}
}

func TestIsAPIRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
	assert.True(t, isAPIRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/search", nil)
	req.Header.Set("Accept", "application/json")
	assert.True(t, isAPIRequest(req))

	req.Header.Set("HX-Request", "true")
	assert.False(t, isAPIRequest(req))

	assert.False(t, isAPIRequest(httptest.NewRequest(http.MethodGet, "/search", nil)))
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
