package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/csrf"
	"github.com/DukeRupert/marquee/internal/domain"
)

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
	RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{})
	RenderHTTPWithToast(w http.ResponseWriter, name string, data interface{}, toast ToastData)
	RenderPartial(w http.ResponseWriter, name string, data interface{})
	RenderToast(w http.ResponseWriter, toast ToastData)
}

// Flash represents a flash message to display to the user.
//
// The Type field determines styling in templates:
// - "success" -> green background
// - "error"   -> red background
// - "info"    -> blue background
type Flash struct {
	Type    string // "success", "error", or "info"
	Message string
}

// PageData is the data every full page template receives. Page specific
// structs embed it.
type PageData struct {
	Title       string
	CurrentPath string
	CSRFToken   string
	User        *domain.User // nil for anonymous viewers
	Flash       *Flash
}

// newPageData fills the common page fields from the request.
func newPageData(r *http.Request, title string) PageData {
	return PageData{
		Title:       title,
		CurrentPath: r.URL.Path,
		CSRFToken:   csrf.Token(r.Context()),
		User:        auth.GetUser(r.Context()),
	}
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// htmxTarget returns the id of the element htmx will swap, if any.
func htmxTarget(r *http.Request) string {
	if !isHTMX(r) {
		return ""
	}
	return r.Header.Get("HX-Target")
}

// viewerKey identifies who is browsing, for superseding their older
// searches: the session id when signed in, otherwise the CSRF cookie token,
// which is stable per browser, and finally the client address.
func viewerKey(r *http.Request) string {
	if sess := auth.GetSession(r.Context()); sess != nil {
		return "session/" + sess.ID.String()
	}
	if token := csrf.Token(r.Context()); token != "" {
		return "browser/" + token
	}
	return "ip/" + ClientIP(r)
}

// ClientIP extracts the client IP from the request, considering proxy headers.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if clientIP := strings.TrimSpace(strings.Split(xff, ",")[0]); clientIP != "" {
			return clientIP
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
