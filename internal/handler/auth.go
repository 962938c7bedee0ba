// Package handler contains HTTP handlers for the marquee front end.
//
// This file implements the sign-in, sign-up, verification and sign-out
// handlers. Accounts live in the movie API; the handlers manage the local
// session cookie that refers to the API token.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/service"
	"github.com/DukeRupert/marquee/internal/session"
)

// =============================================================================
// Handler Configuration
// =============================================================================

// LoginThrottle counts failed sign-in attempts per client address.
type LoginThrottle interface {
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// AuthHandler handles authentication-related HTTP requests.
//
// Routes handled:
// - GET  /login  -> ShowLogin
// - POST /login  -> Login
// - GET  /signup -> ShowSignup
// - POST /signup -> Signup
// - GET  /verify -> ShowVerify
// - POST /verify -> Verify
// - POST /logout -> Logout
type AuthHandler struct {
	authService service.AuthService
	throttle    LoginThrottle // optional
	renderer    TemplateRenderer
	logger      *slog.Logger
	isSecure    bool
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
// throttle may be nil.
//
// Example usage in main.go:
//
//	authHandler := handler.NewAuthHandler(authService, authLimiter, renderer, logger, cfg.SecureCookies())
func NewAuthHandler(
	authService service.AuthService,
	throttle LoginThrottle,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		throttle:    throttle,
		renderer:    renderer,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// AuthPageData contains common data for authentication pages.
type AuthPageData struct {
	PageData
	Form     map[string]string // Form field values for re-populating on error
	Errors   map[string]string // Field-level validation errors
	ReturnTo string            // URL to redirect to after successful login
}

func (h *AuthHandler) authPage(r *http.Request, title string) AuthPageData {
	return AuthPageData{
		PageData: newPageData(r, title),
		Form:     make(map[string]string),
		Errors:   make(map[string]string),
	}
}

// =============================================================================
// GET /login - Show Login Form
// =============================================================================

// ShowLogin renders the login form.
//
// Template: auth/login
//
// Query Parameters:
// - return_to (optional): URL to redirect to after login
// - logout=1: show the signed-out notice
// - verified=1: show the account-verified notice
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if auth.GetSession(r.Context()) != nil {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	data := h.authPage(r, "Sign in")
	if isSafeRedirectURL(q.Get("return_to")) {
		data.ReturnTo = q.Get("return_to")
	}
	switch {
	case q.Get("logout") == "1":
		data.Flash = &Flash{Type: "success", Message: "You have been signed out."}
	case q.Get("verified") == "1":
		data.Flash = &Flash{Type: "success", Message: "Your account is verified. Sign in to continue."}
	}

	h.renderer.RenderHTTP(w, "auth/login", data)
}

// =============================================================================
// POST /login - Process Login
// =============================================================================

// Login checks the credentials with the API, starts a session and redirects
// to return_to or /home.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	data := h.authPage(r, "Sign in")

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		data.Flash = &Flash{Type: "error", Message: "Invalid form submission. Please try again."}
		h.renderer.RenderHTTP(w, "auth/login", data)
		return
	}

	creds := domain.Credentials{
		Email:    strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		Password: r.FormValue("password"),
	}
	// Store form values for re-rendering (except password)
	data.Form["Email"] = creds.Email
	if returnTo := r.FormValue("return_to"); isSafeRedirectURL(returnTo) {
		data.ReturnTo = returnTo
	}

	token, sess, err := h.authService.Login(r.Context(), creds)
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			data.Errors = ve.Fields
		case domain.ErrorCode(err) == domain.EUNAUTHORIZED:
			if h.throttle != nil {
				h.throttle.RecordFailedLogin(ClientIP(r))
			}
			data.Flash = &Flash{Type: "error", Message: "Invalid email or password"}
		case domain.ErrorCode(err) == domain.ERATELIMIT:
			data.Flash = &Flash{Type: "error", Message: "Too many attempts. Please wait a moment and try again."}
		default:
			h.logger.Error("login failed", "error", err, "email", creds.Email)
			data.Flash = &Flash{Type: "error", Message: "Login failed. Please try again later."}
		}
		h.renderer.RenderHTTP(w, "auth/login", data)
		return
	}

	if h.throttle != nil {
		h.throttle.ResetLogin(ClientIP(r))
	}
	session.SetCookie(w, token, time.Until(sess.ExpiresAt), h.isSecure)

	redirectURL := "/home"
	if data.ReturnTo != "" {
		redirectURL = data.ReturnTo
	}
	redirect(w, r, redirectURL)
}

// =============================================================================
// GET/POST /signup - Registration
// =============================================================================

// ShowSignup renders the registration form.
//
// Template: auth/signup
func (h *AuthHandler) ShowSignup(w http.ResponseWriter, r *http.Request) {
	if auth.GetSession(r.Context()) != nil {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	h.renderer.RenderHTTP(w, "auth/signup", h.authPage(r, "Create an account"))
}

// Signup creates the account and sends the viewer to the verification form.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	data := h.authPage(r, "Create an account")

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		data.Flash = &Flash{Type: "error", Message: "Invalid form submission. Please try again."}
		h.renderer.RenderHTTP(w, "auth/signup", data)
		return
	}

	reg := domain.Registration{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		Password: r.FormValue("password"),
	}
	data.Form["Name"] = reg.Name
	data.Form["Email"] = reg.Email

	if err := h.authService.Register(r.Context(), reg); err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			data.Errors = ve.Fields
		case domain.ErrorCode(err) == domain.ECONFLICT:
			data.Errors["email"] = "An account with this email already exists"
		case domain.ErrorCode(err) == domain.EINVALID:
			data.Flash = &Flash{Type: "error", Message: domain.ErrorMessage(err)}
		default:
			h.logger.Error("registration failed", "error", err, "email", reg.Email)
			data.Flash = &Flash{Type: "error", Message: "Sign up failed. Please try again later."}
		}
		h.renderer.RenderHTTP(w, "auth/signup", data)
		return
	}

	redirect(w, r, "/verify?email="+url.QueryEscape(reg.Email))
}

// =============================================================================
// GET/POST /verify - Account Verification
// =============================================================================

// ShowVerify renders the one-time code form.
//
// Template: auth/verify
//
// Query Parameters:
// - email (optional): pre-fills the email field
func (h *AuthHandler) ShowVerify(w http.ResponseWriter, r *http.Request) {
	data := h.authPage(r, "Verify your account")
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		data.Form["Email"] = email
		data.Flash = &Flash{Type: "info", Message: "We sent a code to " + email + "."}
	}
	h.renderer.RenderHTTP(w, "auth/verify", data)
}

// Verify confirms the account and sends the viewer to sign in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	data := h.authPage(r, "Verify your account")

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		data.Flash = &Flash{Type: "error", Message: "Invalid form submission. Please try again."}
		h.renderer.RenderHTTP(w, "auth/verify", data)
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	otp := strings.TrimSpace(r.FormValue("otp"))
	data.Form["Email"] = email

	if err := h.authService.Verify(r.Context(), email, otp); err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			data.Errors = ve.Fields
		case domain.ErrorCode(err) == domain.EINVALID, domain.ErrorCode(err) == domain.EUNAUTHORIZED, domain.ErrorCode(err) == domain.ENOTFOUND:
			data.Errors["otp"] = "That code is invalid or has expired"
		default:
			h.logger.Error("verification failed", "error", err, "email", email)
			data.Flash = &Flash{Type: "error", Message: "Verification failed. Please try again later."}
		}
		h.renderer.RenderHTTP(w, "auth/verify", data)
		return
	}

	redirect(w, r, "/login?verified=1")
}

// =============================================================================
// POST /logout - Process Logout
// =============================================================================

// Logout revokes the API token, ends the session and clears the cookie.
//
// Notes:
// - This operation is idempotent - calling without a session is fine
// - Always clear the cookie even if ending the session fails
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.SessionToken(r.Context())
	if token == "" {
		token = session.TokenFromRequest(r)
	}

	if err := h.authService.Logout(r.Context(), token, auth.GetSession(r.Context())); err != nil {
		h.logger.Warn("failed to end session", "error", err)
	}

	session.ClearCookie(w, h.isSecure)
	redirect(w, r, "/login?logout=1")
}

// =============================================================================
// Helpers
// =============================================================================

// redirect sends the viewer to target. htmx requests get HX-Redirect so the
// browser performs a full navigation.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// isSafeRedirectURL checks if a URL is safe for redirecting.
//
// Examples:
// - "/home"                   -> true (relative URL)
// - "/search?keyword=alien"   -> true (relative URL with query)
// - "//evil.com"              -> false (protocol-relative, could be external)
// - "https://evil.com"        -> false (absolute URL to external domain)
// - "javascript:alert(1)"     -> false (javascript URL)
func isSafeRedirectURL(rawURL string) bool {
	// Must start with /
	if !strings.HasPrefix(rawURL, "/") {
		return false
	}

	// Must not start with // or /\ (protocol-relative URL)
	if strings.HasPrefix(rawURL, "//") || strings.HasPrefix(rawURL, "/\\") {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	// Must not have a scheme or host
	return parsed.Scheme == "" && parsed.Host == ""
}

// =============================================================================
// Route Registration Helper
// =============================================================================

// AuthRoutes wraps the form posts that are rate limited.
type AuthRoutes struct {
	LimitLogin    func(http.Handler) http.Handler
	LimitRegister func(http.Handler) http.Handler
	LimitVerify   func(http.Handler) http.Handler
}

// RegisterRoutes registers all auth routes on the provided ServeMux. Nil
// limiters leave the route unlimited.
//
// Usage in main.go:
//
//	authHandler.RegisterRoutes(mux, handler.AuthRoutes{LimitLogin: authLimiter.LimitLogin})
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limits AuthRoutes) {
	wrap := func(limit func(http.Handler) http.Handler, fn http.HandlerFunc) http.Handler {
		if limit == nil {
			return fn
		}
		return limit(fn)
	}

	mux.HandleFunc("GET /login", h.ShowLogin)
	mux.Handle("POST /login", wrap(limits.LimitLogin, h.Login))
	mux.HandleFunc("GET /signup", h.ShowSignup)
	mux.Handle("POST /signup", wrap(limits.LimitRegister, h.Signup))
	mux.HandleFunc("GET /verify", h.ShowVerify)
	mux.Handle("POST /verify", wrap(limits.LimitVerify, h.Verify))
	mux.HandleFunc("POST /logout", h.Logout)
}
