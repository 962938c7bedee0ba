package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/marquee/internal/api"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/session"
)

// AuthAPI is the part of the movie API that owns accounts.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (api.Grant, error)
	Register(ctx context.Context, reg domain.Registration) error
	Verify(ctx context.Context, email, otp string) error
	Logout(ctx context.Context, token string) error
}

// AuthService signs viewers in and out. Accounts live in the movie API; this
// service keeps the local session that holds the API token.
type AuthService interface {
	// Login checks the credentials with the API and starts a session.
	// Returns the raw session token for the cookie.
	Login(ctx context.Context, creds domain.Credentials) (string, *domain.Session, error)

	// Register creates an account. The API emails a code to verify it.
	Register(ctx context.Context, reg domain.Registration) error

	// Verify confirms an account with the emailed code.
	Verify(ctx context.Context, email, otp string) error

	// Logout revokes the API token and ends the local session.
	Logout(ctx context.Context, token string, sess *domain.Session) error

	// Resolve returns the session for a raw cookie token.
	Resolve(ctx context.Context, token string) (*domain.Session, error)
}

// authService implements AuthService.
type authService struct {
	api      AuthAPI
	sessions *session.Manager
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(api AuthAPI, sessions *session.Manager, logger *slog.Logger) AuthService {
	return &authService{
		api:      api,
		sessions: sessions,
		logger:   logger,
	}
}

func (s *authService) Login(ctx context.Context, creds domain.Credentials) (string, *domain.Session, error) {
	const op = "AuthService.Login"

	if err := creds.Validate(op); err != nil {
		return "", nil, err
	}

	grant, err := s.api.Login(ctx, creds)
	if err != nil {
		// Do not tell the viewer which half of the credentials was wrong
		if code := domain.ErrorCode(err); code == domain.EUNAUTHORIZED || code == domain.ENOTFOUND || code == domain.EINVALID {
			s.logger.Info("login rejected", "email", strings.TrimSpace(creds.Email))
			return "", nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return "", nil, err
	}

	token, sess, err := s.sessions.Start(ctx, grant.User, grant.AccessToken, grant.ExpiresIn)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user logged in", "user_id", sess.User.ID)
	return token, sess, nil
}

func (s *authService) Register(ctx context.Context, reg domain.Registration) error {
	const op = "AuthService.Register"

	if err := reg.Validate(op); err != nil {
		return err
	}
	if err := s.api.Register(ctx, reg); err != nil {
		return err
	}
	s.logger.Info("user registered", "email", strings.TrimSpace(reg.Email))
	return nil
}

func (s *authService) Verify(ctx context.Context, email, otp string) error {
	const op = "AuthService.Verify"

	var ve *domain.ValidationError
	if strings.TrimSpace(email) == "" {
		ve = domain.AddFieldError(ve, "email", "Email is required")
	}
	if strings.TrimSpace(otp) == "" {
		ve = domain.AddFieldError(ve, "otp", "Enter the code from your email")
	}
	if ve != nil {
		ve.Op = op
		return ve
	}

	return s.api.Verify(ctx, email, otp)
}

func (s *authService) Logout(ctx context.Context, token string, sess *domain.Session) error {
	if sess != nil {
		// The local session ends regardless of what the API says
		if err := s.api.Logout(ctx, sess.AccessToken); err != nil {
			s.logger.Warn("api logout failed", "user_id", sess.User.ID, "error", err)
		}
	}
	if err := s.sessions.End(ctx, token); err != nil {
		return err
	}
	if sess != nil {
		s.logger.Info("user logged out", "user_id", sess.User.ID)
	}
	return nil
}

func (s *authService) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	return s.sessions.Resolve(ctx, token)
}
