// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/marquee/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// sessionContextKey is the key used to store the resolved session in context.
	sessionContextKey contextKey = "session"

	// tokenContextKey holds the raw session cookie token.
	tokenContextKey contextKey = "session_token"
)

// GetSession retrieves the resolved session from the context.
//
// Returns nil if no user is signed in.
func GetSession(ctx context.Context) *domain.Session {
	sess, ok := ctx.Value(sessionContextKey).(*domain.Session)
	if !ok {
		return nil
	}
	return sess
}

// GetUser retrieves the signed-in user from the context.
//
// Returns nil if no user is signed in.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle anonymous request
//	}
func GetUser(ctx context.Context) *domain.User {
	sess := GetSession(ctx)
	if sess == nil {
		return nil
	}
	return &sess.User
}

// GetUserFromRequest retrieves the signed-in user from the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// AccessToken returns the API access token of the signed-in user, or "".
func AccessToken(ctx context.Context) string {
	if sess := GetSession(ctx); sess != nil {
		return sess.AccessToken
	}
	return ""
}

// SetSession stores a resolved session and its raw cookie token in the context.
//
// This is typically called by authentication middleware after validating
// the session cookie.
func SetSession(ctx context.Context, sess *domain.Session, token string) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, tokenContextKey, token)
}

// SessionToken returns the raw session cookie token stored by SetSession.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
