package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/marquee/internal/metrics"
)

// Worker runs background jobs from an in-process queue with a fixed number
// of goroutines, and enqueues scheduled jobs on their intervals.
type Worker struct {
	queue    *queue
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	schedules []schedule

	// Synchronization
	wg     sync.WaitGroup
	wakeCh chan struct{}
	stopCh chan struct{}
	once   sync.Once
}

type schedule struct {
	jobType  string
	interval time.Duration
	runFirst bool
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		queue:    &queue{max: config.QueueSize},
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		now:      time.Now,
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("Registered job handler", "job_type", jobType)
}

// Every enqueues jobType each interval once the worker starts. With
// runFirst the first run is enqueued at start. A new run is skipped while a
// previous one is still queued. Call this before Start().
func (w *Worker) Every(jobType string, interval time.Duration, runFirst bool) {
	w.schedules = append(w.schedules, schedule{jobType: jobType, interval: interval, runFirst: runFirst})
}

// Start launches the job goroutines and schedules.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	for _, s := range w.schedules {
		w.wg.Add(1)
		go w.runSchedule(ctx, s)
	}

	w.logger.Info("Worker started",
		"concurrency", w.config.Concurrency,
		"schedules", len(w.schedules),
	)
}

// Stop signals all goroutines to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// notify wakes one idle worker.
func (w *Worker) notify() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *Worker) runSchedule(ctx context.Context, s schedule) {
	defer w.wg.Done()

	enqueue := func() {
		if w.queue.hasPending(s.jobType) {
			w.logger.Debug("Skipping scheduled job, previous run still queued", "job_type", s.jobType)
			return
		}
		if _, err := w.Enqueue(s.jobType, nil); err != nil {
			w.logger.Error("Failed to enqueue scheduled job", "job_type", s.jobType, "error", err)
		}
	}

	if s.runFirst {
		enqueue()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

// runWorker is the main loop for a worker goroutine.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain due jobs before sleeping
		for w.processNextJob(ctx, logger) {
			select {
			case <-w.stopCh:
				logger.Debug("Worker stopping")
				return
			default:
			}
		}

		select {
		case <-w.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			return
		case <-w.wakeCh:
		case <-ticker.C:
		}
	}
}

// processNextJob runs one due job. It returns false when none was due.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) bool {
	job, ok := w.queue.pop(w.now())
	if !ok {
		return false
	}

	job.Attempts++
	logger = logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts)
	logger.Info("Processing job")

	start := time.Now()
	err := w.executeJob(ctx, job)
	duration := time.Since(start)

	if err == nil {
		metrics.JobCompleted(job.Type, duration)
		logger.Info("Job completed", "duration", duration)
		return true
	}

	metrics.JobFailed(job.Type, duration)
	logger.Error("Job failed", "error", err)
	w.retry(job, err, logger)
	return true
}

// executeJob runs the appropriate handler for the job with a timeout context.
func (w *Worker) executeJob(ctx context.Context, job Job) error {
	handler, ok := w.handlers[job.Type]
	if !ok {
		// No handler registered - this is a permanent error
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// retry requeues a failed job with exponential backoff unless the error is
// permanent or attempts are exhausted.
func (w *Worker) retry(job Job, jobErr error, logger *slog.Logger) {
	if IsPermanent(jobErr) {
		logger.Warn("Job failed with permanent error, will not retry")
		return
	}
	if job.Attempts >= job.MaxAttempts {
		logger.Warn("Job exhausted its attempts", "max_attempts", job.MaxAttempts)
		return
	}

	delay := w.config.RetryBaseDelay << (job.Attempts - 1)
	job.RunAt = w.now().Add(delay)
	if err := w.queue.push(job); err != nil {
		logger.Error("Failed to reschedule job", "error", err)
		return
	}
	logger.Info("Job rescheduled", "delay", delay)
}
