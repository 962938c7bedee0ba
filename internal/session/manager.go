package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/marquee/internal/domain"
)

// Manager creates, resolves and ends sessions.
type Manager struct {
	store    Store
	sealer   *Sealer
	duration time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager creates a Manager. duration is normalized with NormalizeDuration.
func NewManager(store Store, sealer *Sealer, duration time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		sealer:   sealer,
		duration: NormalizeDuration(duration),
		now:      time.Now,
		logger:   logger,
	}
}

// Start creates a session for user holding accessToken. tokenTTL is the
// lifetime the API gave the token; the session never outlives it. Returns the
// raw cookie token.
func (m *Manager) Start(ctx context.Context, user domain.User, accessToken string, tokenTTL time.Duration) (string, *domain.Session, error) {
	const op = "session.Start"

	token, err := generateToken()
	if err != nil {
		return "", nil, domain.Internal(err, op, "Failed to create session")
	}
	sealed, err := m.sealer.Seal(accessToken)
	if err != nil {
		return "", nil, domain.Internal(err, op, "Failed to create session")
	}

	lifetime := m.duration
	if tokenTTL > 0 && NormalizeDuration(tokenTTL) < lifetime {
		lifetime = NormalizeDuration(tokenTTL)
	}

	now := m.now()
	rec := Record{
		ID:          uuid.New(),
		TokenHash:   HashToken(token),
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		SealedToken: sealed,
		CreatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}

	m.logger.Info("session started", "session_id", rec.ID, "user_id", user.ID)
	return token, &domain.Session{
		ID:          rec.ID,
		User:        user,
		AccessToken: accessToken,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// Resolve returns the live session for a raw cookie token.
// Returns domain.EUNAUTHORIZED when the token is unknown, expired or cannot
// be opened.
func (m *Manager) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	const op = "session.Resolve"
	if token == "" {
		return nil, domain.Unauthorized(op, "Please sign in to continue.")
	}

	hash := HashToken(token)
	rec, err := m.store.Get(ctx, hash)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return nil, domain.Unauthorized(op, "Please sign in to continue.")
		}
		return nil, err
	}

	now := m.now()
	if !now.Before(rec.ExpiresAt) {
		_ = m.store.Delete(ctx, hash)
		return nil, domain.Unauthorized(op, "Your session has expired. Please sign in again.")
	}

	accessToken, err := m.sealer.Open(rec.SealedToken)
	if err != nil {
		// Key rotated or record tampered with
		m.logger.Warn("dropping unreadable session", "session_id", rec.ID, "error", err)
		_ = m.store.Delete(ctx, hash)
		return nil, domain.Unauthorized(op, "Please sign in to continue.")
	}

	return &domain.Session{
		ID:          rec.ID,
		User:        domain.User{ID: rec.UserID, Email: rec.Email, Name: rec.Name},
		AccessToken: accessToken,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// End deletes the session for a raw cookie token. Unknown tokens are ignored.
func (m *Manager) End(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, HashToken(token))
}

// Purge removes expired sessions and returns how many were removed and how
// many remain.
func (m *Manager) Purge(ctx context.Context) (removed, remaining int64, err error) {
	removed, err = m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, 0, err
	}
	remaining, err = m.store.Count(ctx)
	if err != nil {
		return removed, 0, err
	}
	return removed, remaining, nil
}

// Duration returns the configured session lifetime.
func (m *Manager) Duration() time.Duration {
	return m.duration
}

// HashToken returns the hex SHA-256 of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     CookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the raw session token from the request cookie.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
