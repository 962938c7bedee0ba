package querycache

import (
	"context"
	"sync"

	"github.com/DukeRupert/marquee/internal/metrics"
)

// Scope tracks the latest query per slot. A slot is one viewer looking at
// one view, e.g. session id + "search".
type Scope struct {
	mu     sync.Mutex
	seq    uint64
	latest map[string]*Ticket
}

// Ticket is a registered query in a slot.
type Ticket struct {
	scope  *Scope
	slot   string
	key    Key
	seq    uint64
	cancel context.CancelFunc
}

// NewScope creates an empty Scope.
func NewScope() *Scope {
	return &Scope{latest: make(map[string]*Ticket)}
}

// Begin registers key as the newest query for slot. The previous ticket in
// the slot, if any, has its context canceled. The returned context is
// canceled when ctx ends, when the ticket is superseded, or on Done.
func (s *Scope) Begin(ctx context.Context, slot string, key Key) (context.Context, *Ticket) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.seq++
	t := &Ticket{scope: s, slot: slot, key: key, seq: s.seq, cancel: cancel}
	prev := s.latest[slot]
	s.latest[slot] = t
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	return ctx, t
}

// Superseded reports whether a newer query began in t's slot.
func (t *Ticket) Superseded() bool {
	t.scope.mu.Lock()
	defer t.scope.mu.Unlock()
	cur, ok := t.scope.latest[t.slot]
	return ok && cur.seq > t.seq
}

// Done releases the ticket. The slot is cleared when t is still the newest.
func (t *Ticket) Done() {
	t.scope.mu.Lock()
	if cur, ok := t.scope.latest[t.slot]; ok && cur.seq == t.seq {
		delete(t.scope.latest, t.slot)
	}
	t.scope.mu.Unlock()
	t.cancel()
}

// Slots returns the number of slots with a query in flight.
func (s *Scope) Slots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}

// Fetch loads key through c under slot in s. When a newer query begins in
// the same slot before this one finishes, Fetch returns ErrSuperseded, even
// if the load itself succeeded.
func Fetch[T any](ctx context.Context, c *Cache, s *Scope, slot string, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	scoped, t := s.Begin(ctx, slot, key)
	defer t.Done()

	v, err := Do(scoped, c, key, fn)
	if t.Superseded() {
		metrics.QueryCacheResults.WithLabelValues("superseded").Inc()
		return zero, ErrSuperseded
	}
	return v, err
}
