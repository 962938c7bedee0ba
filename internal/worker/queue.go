package worker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Job type constants. These must match the JobHandler.Type() values.
const (
	JobTypeRefreshUpcoming = "refresh_upcoming"
	JobTypeWarmTrending    = "warm_trending"
	JobTypePurgeSessions   = "purge_sessions"
)

// ErrQueueFull is returned by Enqueue when QueueSize jobs are pending.
var ErrQueueFull = errors.New("worker: job queue is full")

// Job is a queued unit of work.
type Job struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
}

// EnqueueOption customizes an enqueued job.
type EnqueueOption func(*Job)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int) EnqueueOption {
	return func(j *Job) {
		j.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(j *Job) {
		j.RunAt = j.RunAt.Add(delay)
	}
}

// queue holds pending jobs ordered by run time.
type queue struct {
	mu   sync.Mutex
	jobs []Job
	max  int
}

func (q *queue) push(j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) >= q.max {
		return ErrQueueFull
	}
	i := sort.Search(len(q.jobs), func(i int) bool { return q.jobs[i].RunAt.After(j.RunAt) })
	q.jobs = append(q.jobs, Job{})
	copy(q.jobs[i+1:], q.jobs[i:])
	q.jobs[i] = j
	return nil
}

// pop removes the first job due at now.
func (q *queue) pop(now time.Time) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 || q.jobs[0].RunAt.After(now) {
		return Job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// hasPending reports whether a job of jobType is waiting.
func (q *queue) hasPending(jobType string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Type == jobType {
			return true
		}
	}
	return false
}

// Enqueue adds a job with a JSON-encoded payload (nil for none) and returns
// its id.
func (w *Worker) Enqueue(jobType string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	job := Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     data,
		MaxAttempts: w.config.MaxAttempts,
		RunAt:       w.now(),
	}
	for _, opt := range opts {
		opt(&job)
	}

	if err := w.queue.push(job); err != nil {
		return uuid.Nil, err
	}
	w.notify()
	w.logger.Debug("Enqueued job", "job_id", job.ID, "job_type", jobType)
	return job.ID, nil
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	return w.queue.len()
}
