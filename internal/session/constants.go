// Package session keeps the server-side sessions that bind a browser cookie
// to the viewer's movie API access token.
package session

import "time"

const (
	// CookieName is the name of the cookie that stores the session token.
	CookieName = "marquee_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"

	// DefaultDuration is how long a session lives when the API does not
	// report a token lifetime.
	DefaultDuration = 24 * time.Hour

	// MinDuration is the floor applied to configured and API lifetimes.
	MinDuration = 15 * time.Minute

	// MaxDuration caps a session regardless of the token lifetime.
	MaxDuration = 7 * 24 * time.Hour

	// TokenBytes is the number of random bytes in a session token, hex-encoded
	// to 64 characters.
	TokenBytes = 32
)

// NormalizeDuration clamps d to [MinDuration, MaxDuration]; zero means
// DefaultDuration.
func NormalizeDuration(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultDuration
	case d < MinDuration:
		return MinDuration
	case d > MaxDuration:
		return MaxDuration
	default:
		return d
	}
}
