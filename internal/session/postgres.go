package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DukeRupert/marquee/internal/domain"
)

// PostgresStore is a Store backed by the sessions table. The caller opens db
// with the pgx stdlib driver and runs migrations first.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createSession = `
INSERT INTO sessions (id, token_hash, user_id, email, name, sealed_token, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	const op = "session.PostgresStore.Create"
	_, err := s.db.ExecContext(ctx, createSession,
		rec.ID, rec.TokenHash, rec.UserID, rec.Email, rec.Name,
		rec.SealedToken, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return domain.Internal(err, op, "Failed to create session")
	}
	return nil
}

const getSession = `
SELECT id, token_hash, user_id, email, name, sealed_token, created_at, expires_at
FROM sessions
WHERE token_hash = $1`

func (s *PostgresStore) Get(ctx context.Context, tokenHash string) (*Record, error) {
	const op = "session.PostgresStore.Get"
	var rec Record
	err := s.db.QueryRowContext(ctx, getSession, tokenHash).Scan(
		&rec.ID, &rec.TokenHash, &rec.UserID, &rec.Email, &rec.Name,
		&rec.SealedToken, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "Session not found"}
	}
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load session")
	}
	return &rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return domain.Internal(err, "session.PostgresStore.Delete", "Failed to delete session")
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "session.PostgresStore.DeleteExpired"
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to count deleted sessions")
	}
	return n, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions`).Scan(&n); err != nil {
		return 0, domain.Internal(err, "session.PostgresStore.Count", "Failed to count sessions")
	}
	return n, nil
}
