package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/marquee/internal/domain"
)

// Grant is the result of a successful login.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration // zero when the API did not say
	User        domain.User
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (Grant, error) {
	var out loginSchema
	err := c.do(ctx, request{
		op:     "api.Login",
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   loginBody{Email: strings.TrimSpace(creds.Email), Password: creds.Password},
	}, &out)
	if err != nil {
		return Grant{}, err
	}
	return Grant{
		AccessToken: out.AccessToken,
		ExpiresIn:   time.Duration(out.ExpiresIn) * time.Second,
		User: domain.User{
			ID:    out.User.ID,
			Email: out.User.Email,
			Name:  out.User.Name,
		},
	}, nil
}

type registerBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. The API emails a one-time code to confirm it.
func (c *Client) Register(ctx context.Context, reg domain.Registration) error {
	return c.do(ctx, request{
		op:     "api.Register",
		method: http.MethodPost,
		path:   "/api/v1/auth/register",
		body: registerBody{
			Name:     strings.TrimSpace(reg.Name),
			Email:    strings.TrimSpace(reg.Email),
			Password: reg.Password,
		},
	}, nil)
}

type verifyBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// Verify confirms an account with the emailed one-time code.
func (c *Client) Verify(ctx context.Context, email, otp string) error {
	return c.do(ctx, request{
		op:     "api.Verify",
		method: http.MethodPost,
		path:   "/api/v1/auth/verify",
		body:   verifyBody{Email: strings.TrimSpace(email), OTP: strings.TrimSpace(otp)},
	}, nil)
}

// Logout revokes the access token upstream.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, request{
		op:     "api.Logout",
		method: http.MethodPost,
		path:   "/api/v1/auth/logout",
		token:  token,
	}, nil)
}
