package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/DukeRupert/marquee/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter gives every key a token bucket holding maxAttempts tokens that
// refill evenly over window.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry

	stopOnce sync.Once
	stop     chan struct{}
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Close to stop it.
func NewRateLimiter(maxAttempts int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
		stop:        make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// entry returns the bucket for key, creating a full one when needed.
// Callers hold rl.mu.
func (rl *RateLimiter) entry(key string, now time.Time) *rateLimitEntry {
	e, ok := rl.entries[key]
	if !ok {
		every := rl.window / time.Duration(rl.maxAttempts)
		e = &rateLimitEntry{limiter: rate.NewLimiter(rate.Every(every), rl.maxAttempts)}
		rl.entries[key] = e
	}
	e.lastSeen = now
	return e
}

// Allow reports whether a request from key may proceed, consuming a token
// when it may.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	return rl.entry(key, now).limiter.AllowN(now, 1)
}

// RecordFailure consumes a token for key without checking the limit, so
// failed attempts count against later ones.
func (rl *RateLimiter) RecordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e := rl.entry(key, now)
	if e.limiter.TokensAt(now) >= 1 {
		e.limiter.AllowN(now, 1)
	}
}

// Reset clears the rate limit for a key (e.g., after successful login).
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// TimeUntilReset returns how long until key may make another request.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		return 0
	}
	now := rl.now()
	tokens := e.limiter.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	perToken := rl.window / time.Duration(rl.maxAttempts)
	return time.Duration((1 - tokens) * float64(perToken)).Round(time.Millisecond)
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup periodically drops buckets idle for a full window; they would be
// full again anyway.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, e := range rl.entries {
				if now.Sub(e.lastSeen) > rl.window {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits requests per client IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if m.limiter.Allow(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Warn("rate limit exceeded",
			"ip", clientIP,
			"path", r.URL.Path,
			"method", r.Method,
		)

		retryAfter := int(math.Ceil(m.limiter.TimeUntilReset(clientIP).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		if isAPIRequest(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Too Many Requests</title></head>
<body>
<h1>Too Many Requests</h1>
<p>You have made too many requests. Please wait a moment and try again.</p>
</body>
</html>`))
	})
}

// =============================================================================
// Auth Rate Limiter (combined limiter for auth endpoints)
// =============================================================================

// AuthRateLimiter limits the sign-in, sign-up and verification forms.
type AuthRateLimiter struct {
	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter
	verifyLimiter   *RateLimiter
	logger          *slog.Logger
}

// NewAuthRateLimiter creates rate limiters for auth endpoints.
// - Login: loginAttempts per loginWindow (5 per 15 minutes when zero)
// - Register: 3 attempts per hour
// - Verify: 10 attempts per 15 minutes
func NewAuthRateLimiter(loginAttempts int, loginWindow time.Duration, logger *slog.Logger) *AuthRateLimiter {
	if loginAttempts < 1 {
		loginAttempts = 5
	}
	if loginWindow <= 0 {
		loginWindow = 15 * time.Minute
	}
	return &AuthRateLimiter{
		loginLimiter:    NewRateLimiter(loginAttempts, loginWindow, logger),
		registerLimiter: NewRateLimiter(3, time.Hour, logger),
		verifyLimiter:   NewRateLimiter(10, 15*time.Minute, logger),
		logger:          logger,
	}
}

// LimitLogin returns middleware for rate limiting login attempts.
func (a *AuthRateLimiter) LimitLogin(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.loginLimiter, a.logger).Limit(next)
}

// LimitRegister returns middleware for rate limiting registration attempts.
func (a *AuthRateLimiter) LimitRegister(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.registerLimiter, a.logger).Limit(next)
}

// LimitVerify returns middleware for rate limiting verification codes.
func (a *AuthRateLimiter) LimitVerify(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.verifyLimiter, a.logger).Limit(next)
}

// RecordFailedLogin records a failed login attempt for the given IP.
func (a *AuthRateLimiter) RecordFailedLogin(ip string) {
	a.loginLimiter.RecordFailure(ip)
}

// ResetLogin clears the rate limit for an IP after successful login.
func (a *AuthRateLimiter) ResetLogin(ip string) {
	a.loginLimiter.Reset(ip)
}

// Close stops the cleanup loops of all limiters.
func (a *AuthRateLimiter) Close() {
	a.loginLimiter.Close()
	a.registerLimiter.Close()
	a.verifyLimiter.Close()
}

// =============================================================================
// Helpers
// =============================================================================

func getClientIP(r *http.Request) string {
	return handler.ClientIP(r)
}
