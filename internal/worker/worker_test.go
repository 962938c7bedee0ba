package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.JobTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.RetryBaseDelay = 0
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	jobType string
	mu      sync.Mutex
	calls   [][]byte
	results []error
	done    chan struct{}
}

func newRecordingHandler(jobType string, results ...error) *recordingHandler {
	return &recordingHandler{jobType: jobType, results: results, done: make(chan struct{}, 16)}
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Handle(ctx context.Context, payload []byte) error {
	h.mu.Lock()
	n := len(h.calls)
	h.calls = append(h.calls, payload)
	var err error
	if n < len(h.results) {
		err = h.results[n]
	}
	h.mu.Unlock()
	h.done <- struct{}{}
	return err
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func waitCalls(t *testing.T, h *recordingHandler, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-deadline:
			t.Fatalf("timed out waiting for %d calls, got %d", n, h.callCount())
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(*Config) {}, wantErr: false},
		{name: "concurrency too low", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "concurrency too high", mutate: func(c *Config) { c.Concurrency = 101 }, wantErr: true},
		{name: "poll interval too short", mutate: func(c *Config) { c.PollInterval = time.Millisecond }, wantErr: true},
		{name: "job timeout too short", mutate: func(c *Config) { c.JobTimeout = 500 * time.Millisecond }, wantErr: true},
		{name: "shutdown timeout too short", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: true},
		{name: "no attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }, wantErr: true},
		{name: "negative retry delay", mutate: func(c *Config) { c.RetryBaseDelay = -time.Second }, wantErr: true},
		{name: "empty queue", mutate: func(c *Config) { c.QueueSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "permanent error",
			err:  NewPermanentError(context.Canceled),
			want: true,
		},
		{
			name: "regular error",
			err:  context.Canceled,
			want: false,
		},
		{
			name: "wrapped permanent error",
			err:  errors.Join(errors.New("outer"), NewPermanentError(io.EOF)),
			want: true,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorker_RunsEnqueuedJob(t *testing.T) {
	w, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := newRecordingHandler(JobTypeWarmTrending)
	w.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if _, err := w.Enqueue(JobTypeWarmTrending, map[string]int{"pages": 2}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitCalls(t, h, 1)

	h.mu.Lock()
	payload := string(h.calls[0])
	h.mu.Unlock()
	if payload != `{"pages":2}` {
		t.Errorf("payload = %s, want {\"pages\":2}", payload)
	}
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	w, _ := New(testConfig(), testLogger())
	h := newRecordingHandler(JobTypeRefreshUpcoming, errors.New("upstream down"), nil)
	w.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if _, err := w.Enqueue(JobTypeRefreshUpcoming, nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitCalls(t, h, 2)
}

func TestWorker_StopsAfterMaxAttempts(t *testing.T) {
	w, _ := New(testConfig(), testLogger())
	fail := errors.New("still down")
	h := newRecordingHandler(JobTypeRefreshUpcoming, fail, fail, fail, fail)
	w.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if _, err := w.Enqueue(JobTypeRefreshUpcoming, nil, WithMaxAttempts(2)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitCalls(t, h, 2)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if got := h.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", w.Pending())
	}
}

func TestWorker_PermanentErrorIsNotRetried(t *testing.T) {
	w, _ := New(testConfig(), testLogger())
	h := newRecordingHandler(JobTypePurgeSessions, NewPermanentError(errors.New("bad payload")), nil)
	w.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if _, err := w.Enqueue(JobTypePurgeSessions, nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitCalls(t, h, 1)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if got := h.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestWorker_DelayedJobWaits(t *testing.T) {
	w, _ := New(testConfig(), testLogger())
	h := newRecordingHandler(JobTypeWarmTrending)
	w.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if _, err := w.Enqueue(JobTypeWarmTrending, nil, WithDelay(time.Hour)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := h.callCount(); got != 0 {
		t.Errorf("calls = %d, want 0 before the delay elapses", got)
	}
	if w.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", w.Pending())
	}
}

func TestWorker_Every(t *testing.T) {
	w, _ := New(testConfig(), testLogger())
	h := newRecordingHandler(JobTypePurgeSessions)
	w.Register(h)
	w.Every(JobTypePurgeSessions, 20*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	waitCalls(t, h, 3)
}

func TestWorker_EnqueueQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	w, _ := New(cfg, testLogger())

	if _, err := w.Enqueue(JobTypeWarmTrending, nil); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if _, err := w.Enqueue(JobTypeWarmTrending, nil); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestWorker_UnknownJobTypeIsDropped(t *testing.T) {
	w, _ := New(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if _, err := w.Enqueue("unknown", nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", w.Pending())
	}
}

func TestQueue_OrdersByRunAt(t *testing.T) {
	q := &queue{max: 10}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = q.push(Job{Type: "c", RunAt: base.Add(2 * time.Minute)})
	_ = q.push(Job{Type: "a", RunAt: base})
	_ = q.push(Job{Type: "b", RunAt: base.Add(time.Minute)})

	if _, ok := q.pop(base.Add(-time.Second)); ok {
		t.Fatal("pop() returned a job before it was due")
	}

	var order []string
	for {
		j, ok := q.pop(base.Add(time.Hour))
		if !ok {
			break
		}
		order = append(order, j.Type)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
}
