package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/marquee/internal/domain"
)

// Record is a stored session. The raw cookie token is never stored, only its
// SHA-256 hash, and the API access token is kept sealed.
type Record struct {
	ID          uuid.UUID
	TokenHash   string
	UserID      string
	Email       string
	Name        string
	SealedToken []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists session records.
type Store interface {
	// Create stores a new record.
	Create(ctx context.Context, rec Record) error

	// Get returns the record for tokenHash.
	// Returns domain.ENOTFOUND when there is none.
	Get(ctx context.Context, tokenHash string) (*Record, error)

	// Delete removes the record for tokenHash. Missing records are not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes records that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}

// MemoryStore is a Store held in process memory. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.TokenHash]; exists {
		return domain.Conflict("session.MemoryStore.Create", "Session already exists")
	}
	s.records[rec.TokenHash] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tokenHash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tokenHash]
	if !ok {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: "session.MemoryStore.Get", Message: "Session not found"}
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tokenHash)
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}
