package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of goroutines executing jobs.
	// Default: 2
	Concurrency int

	// PollInterval is how often an idle worker checks the queue for jobs
	// whose run time has come.
	// Default: 5 seconds
	PollInterval time.Duration

	// JobTimeout is the maximum time a single job is allowed to run.
	// Default: 1 minute
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// MaxAttempts is the default number of attempts before a job is dropped.
	// Default: 3
	MaxAttempts int

	// RetryBaseDelay is the delay before the first retry; it doubles per attempt.
	// Default: 10 seconds
	RetryBaseDelay time.Duration

	// QueueSize bounds the number of pending jobs.
	// Default: 1000
	QueueSize int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		PollInterval:    5 * time.Second,
		JobTimeout:      time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxAttempts:     3,
		RetryBaseDelay:  10 * time.Second,
		QueueSize:       1000,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 10ms, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("retry base delay must not be negative, got %v", c.RetryBaseDelay)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	return nil
}
