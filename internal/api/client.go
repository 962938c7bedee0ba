// Package api is the client for the movie API that owns the catalog, the user
// collections and authentication. Every response is decoded into an explicit
// wire schema and validated before it is converted to domain types, so callers
// never see a partially populated value.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/metrics"
)

// BreakerName labels the circuit breaker in logs and metrics.
const BreakerName = "movie-api"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL        string        // e.g. https://api.example.com
	Timeout        time.Duration // per request
	RateLimit      float64       // requests per second, 0 disables throttling
	RateBurst      int
	BreakerTimeout time.Duration // open -> half-open delay
	UserAgent      string
}

// DefaultConfig returns a Config with production defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		RateLimit:      20,
		RateBurst:      40,
		BreakerTimeout: 30 * time.Second,
		UserAgent:      "marquee/1.0",
	}
}

// Client calls the movie API. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*response]
	userAgent string
	logger    *slog.Logger
}

// response is a fully read upstream reply.
type response struct {
	status int
	body   []byte
}

// statusError marks a 5xx reply so the breaker counts it as a failure.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url must be absolute, got %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL:   base,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: cfg.UserAgent,
		logger:    logger.With("component", "api"),
	}

	metrics.CircuitBreakerState.WithLabelValues(BreakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        BreakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		// Open after 5 consecutive failures, or 60% failures over 10+ requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A caller that went away says nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.CircuitStateValue(to.String()))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return c, nil
}

// BreakerState returns the current circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// request describes one API call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string // bearer token, empty for anonymous calls
	body   any    // JSON encoded when non-nil
}

// do performs req and decodes a successful reply into out (which may be nil).
// Errors are always *domain.Error, or a wrapped context.Canceled when the
// caller went away.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(req.op, "throttled").Inc()
		return contextError(ctx, req.op, err)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, req)
	})
	metrics.UpstreamRequestDuration.WithLabelValues(req.op).Observe(time.Since(start).Seconds())

	if err != nil {
		var se *statusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.UpstreamRequestsTotal.WithLabelValues(req.op, "rejected").Inc()
			c.logger.Debug("upstream call rejected by breaker", "op", req.op)
			return domain.Unavailable(err, req.op)
		case errors.As(err, &se):
			metrics.UpstreamRequestsTotal.WithLabelValues(req.op, strconv.Itoa(se.status)).Inc()
			c.logger.Warn("upstream server error", "op", req.op, "status", se.status)
			return domain.Unavailable(err, req.op)
		case ctx.Err() != nil:
			metrics.UpstreamRequestsTotal.WithLabelValues(req.op, "canceled").Inc()
			return contextError(ctx, req.op, err)
		default:
			metrics.UpstreamRequestsTotal.WithLabelValues(req.op, "error").Inc()
			c.logger.Warn("upstream transport error", "op", req.op, "error", err)
			return domain.Unavailable(err, req.op)
		}
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(req.op, strconv.Itoa(resp.status)).Inc()
	if resp.status >= 400 {
		return statusToError(req.op, resp.status, resp.body)
	}

	if out == nil {
		return nil
	}
	if err := decode(req.op, resp.body, out); err != nil {
		metrics.UpstreamMalformedTotal.WithLabelValues(req.op).Inc()
		c.logger.Warn("malformed upstream response", "op", req.op, "error", err)
		return err
	}
	return nil
}

// send executes the HTTP exchange. Only transport failures and 5xx replies
// are returned as errors so that client errors do not trip the breaker.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	u := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	resp := &response{status: httpResp.StatusCode, body: data}
	if httpResp.StatusCode >= 500 {
		return resp, &statusError{status: httpResp.StatusCode}
	}
	return resp, nil
}

// errorBody is the error envelope the API returns on 4xx replies.
type errorBody struct {
	Message string `json:"message"`
}

func statusToError(op string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := strings.TrimSpace(eb.Message)

	orDefault := func(def string) string {
		if msg != "" {
			return msg
		}
		return def
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.Invalid(op, orDefault("The request was not accepted."))
	case http.StatusUnauthorized:
		return domain.Unauthorized(op, orDefault("Please sign in to continue."))
	case http.StatusForbidden:
		return domain.Forbidden(op, orDefault("You do not have access to this resource."))
	case http.StatusNotFound:
		return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: orDefault("Not found.")}
	case http.StatusConflict:
		return domain.Conflict(op, orDefault("That change conflicts with existing data."))
	case http.StatusTooManyRequests:
		return domain.RateLimit(op)
	default:
		return domain.Errorf(domain.EINTERNAL, op, "unexpected upstream status %d", status)
	}
}

func contextError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(err, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
