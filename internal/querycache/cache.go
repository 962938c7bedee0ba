// Package querycache holds recent upstream query results keyed by their full
// parameter set. Concurrent loads of the same key share one upstream call,
// and a Scope lets a newer query for the same viewer and view supersede an
// older one that is still loading.
package querycache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DukeRupert/marquee/internal/metrics"
)

// ErrSuperseded is returned to a caller whose query was replaced by a newer
// one in the same scope slot. Its result must not be rendered.
var ErrSuperseded = errors.New("querycache: query superseded")

// DefaultLoadTimeout bounds a shared load once its first caller has gone.
const DefaultLoadTimeout = 15 * time.Second

// Key identifies a query. Keys are built with NewKey or ValuesKey so that
// equal parameter sets always produce equal keys.
type Key string

// NewKey joins path-escaped parts with "/".
func NewKey(parts ...string) Key {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return Key(strings.Join(escaped, "/"))
}

// ValuesKey appends the encoded query values to prefix. url.Values.Encode
// sorts by name, so parameter order does not matter.
func ValuesKey(prefix Key, v url.Values) Key {
	return prefix + "?" + Key(v.Encode())
}

// HasPrefix reports whether k is prefix or lies beneath it.
func (k Key) HasPrefix(prefix Key) bool {
	if k == prefix {
		return true
	}
	rest, ok := strings.CutPrefix(string(k), string(prefix))
	return ok && (strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, "?"))
}

type entry struct {
	value   any
	expires time.Time
}

// Cache is a TTL cache with per-key load de-duplication. Errors are never cached.
type Cache struct {
	ttl         time.Duration
	maxEntries  int
	loadTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	entries  map[Key]entry
	inflight map[Key]*flight
	group    singleflight.Group
}

// flight is one running load. A load overtaken by Invalidate still answers
// its waiters but does not store its result.
type flight struct {
	stale bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries caps the number of held entries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithLoadTimeout sets the timeout of a shared load.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) { c.loadTimeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache whose entries live for ttl. A ttl <= 0 disables
// storage but keeps load de-duplication.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:         ttl,
		maxEntries:  10000,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		entries:     make(map[Key]entry),
		inflight:    make(map[Key]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do returns the fresh cached value for key, or loads it with fn. Concurrent
// callers for the same key wait on one load. A caller whose ctx ends stops
// waiting; the load itself keeps running, detached from that caller, until it
// completes or the load timeout passes.
func Do[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.get(key); ok {
		if typed, ok := v.(T); ok {
			metrics.QueryCacheResults.WithLabelValues("hit").Inc()
			return typed, nil
		}
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	ch := c.group.DoChan(string(key), func() (any, error) {
		defer cancel()
		f := c.begin(key)
		v, err := fn(loadCtx)
		if err != nil {
			c.finish(key, f, nil, false)
			return nil, err
		}
		c.finish(key, f, v, true)
		return v, nil
	})

	select {
	case <-ctx.Done():
		// cancel belongs to the load if this caller started it, so only
		// release it once the load is over.
		go func() {
			<-ch
			cancel()
		}()
		return zero, ctx.Err()
	case res := <-ch:
		cancel()
		if res.Shared {
			metrics.QueryCacheResults.WithLabelValues("shared").Inc()
		} else {
			metrics.QueryCacheResults.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, errors.New("querycache: cached value has unexpected type")
		}
		return typed, nil
	}
}

func (c *Cache) get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		metrics.QueryCacheEntries.Set(float64(len(c.entries)))
		return nil, false
	}
	return e.value, true
}

func (c *Cache) begin(key Key) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := &flight{}
	c.inflight[key] = f
	return f
}

// finish ends the load f and, when store is set, keeps v unless the load
// went stale.
func (c *Cache) finish(key Key, f *flight, v any, store bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
	if !store || f.stale {
		return
	}
	c.setLocked(key, v)
}

func (c *Cache) setLocked(key Key, v any) {
	if c.ttl <= 0 {
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry{value: v, expires: c.now().Add(c.ttl)}
	metrics.QueryCacheEntries.Set(float64(len(c.entries)))
}

// evictLocked drops expired entries, then the entry closest to expiry if the
// cache is still full.
func (c *Cache) evictLocked() {
	now := c.now()
	var (
		oldest    Key
		oldestExp time.Time
	)
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestExp.IsZero() || e.expires.Before(oldestExp) {
			oldest, oldestExp = k, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries && oldest != "" {
		delete(c.entries, oldest)
	}
}

// Invalidate removes every entry at or beneath prefix and returns how many
// were removed. Loads running under prefix are marked stale and forgotten, so
// their results are not stored and the next Do starts a fresh load.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, f := range c.inflight {
		if k.HasPrefix(prefix) {
			f.stale = true
			delete(c.inflight, k)
			c.group.Forget(string(k))
		}
	}

	n := 0
	for k := range c.entries {
		if k.HasPrefix(prefix) {
			delete(c.entries, k)
			n++
		}
	}
	metrics.QueryCacheEntries.Set(float64(len(c.entries)))
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	metrics.QueryCacheEntries.Set(float64(len(c.entries)))
	return n
}

// Len returns the number of held entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
