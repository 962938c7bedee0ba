package metrics

import "time"

// JobCompleted records a successful job run
func JobCompleted(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a failed job run
func JobFailed(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// CircuitStateValue maps a breaker state name to the gauge value.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
