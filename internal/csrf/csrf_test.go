package csrf

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtect() *Protect {
	return NewProtect(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, 44)
	assert.NotEqual(t, a, b)
}

func TestValidateToken(t *testing.T) {
	assert.True(t, ValidateToken("abc", "abc"))
	assert.False(t, ValidateToken("abc", "abd"))
	assert.False(t, ValidateToken("", ""))
	assert.False(t, ValidateToken("abc", ""))
}

func TestProtect_IssuesTokenOnGet(t *testing.T) {
	var seen string
	h := newProtect().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Token(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.NotEmpty(t, seen)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
}

func TestProtect_ReusesCookieToken(t *testing.T) {
	var seen string
	h := newProtect().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Token(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "existing"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "existing", seen)
	assert.Empty(t, rec.Result().Cookies())
}

func TestProtect_Post(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		cookie string
		form   string
		header string
		want   int
	}{
		{"matching form field", "tok", "tok", "", http.StatusNoContent},
		{"matching header", "tok", "", "tok", http.StatusNoContent},
		{"mismatch", "tok", "other", "", http.StatusForbidden},
		{"no cookie", "", "tok", "", http.StatusForbidden},
		{"no submitted token", "tok", "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			if tt.form != "" {
				form.Set(FormFieldName, tt.form)
			}
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(HeaderName, tt.header)
			}

			rec := httptest.NewRecorder()
			newProtect().Handler(next).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
