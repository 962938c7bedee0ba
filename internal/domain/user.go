package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the signed-in viewer as known to this front end. The account itself
// lives in the movie API; only display fields are kept here.
type User struct {
	ID    string // API user id
	Email string
	Name  string
}

// DisplayName returns the name, falling back to the email address.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session binds a browser cookie to an API access token.
type Session struct {
	ID          uuid.UUID
	User        User
	AccessToken string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Credentials are the login form fields.
type Credentials struct {
	Email    string
	Password string
}

// Validate checks the credentials are present and well formed.
func (c Credentials) Validate(op string) error {
	var ve *ValidationError
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		ve = AddFieldError(ve, "email", "Enter a valid email address")
	}
	if c.Password == "" {
		ve = AddFieldError(ve, "password", "Password is required")
	}
	if ve != nil {
		ve.Op = op
		return ve
	}
	return nil
}

// Registration is the signup form.
type Registration struct {
	Name     string
	Email    string
	Password string
}

// MinPasswordLength matches the API's password policy.
const MinPasswordLength = 8

// Validate checks the registration form.
func (r Registration) Validate(op string) error {
	var ve *ValidationError
	if strings.TrimSpace(r.Name) == "" {
		ve = AddFieldError(ve, "name", "Name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		ve = AddFieldError(ve, "email", "Enter a valid email address")
	}
	if len(r.Password) < MinPasswordLength {
		ve = AddFieldError(ve, "password", "Password must be at least 8 characters")
	}
	if ve != nil {
		ve.Op = op
		return ve
	}
	return nil
}
