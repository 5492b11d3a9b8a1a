package domain

import (
	"fmt"
	"time"
)

// JobNotFoundError is returned when a job ID does not exist.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// UnknownJobTypeError is returned when no factory is registered for a job type.
// It indicates a configuration mistake, never a transient condition, so it is
// surfaced immediately and never retried.
type UnknownJobTypeError struct {
	JobType string
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("unknown job type %q", e.JobType)
}

// RateLimitExceededError is returned when enqueues for a job type exceed
// the configured rate limit.
type RateLimitExceededError struct {
	JobType string
	Limit   int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for job type %q: limit is %d", e.JobType, e.Limit)
}

// TimeoutError is returned when a single execute attempt outlives its
// configured ceiling. It counts against the retry budget like any other
// failure.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobID, e.Timeout)
}

// MissingParamError is returned by job executors when a required parameter
// is absent or has the wrong shape.
type MissingParamError struct {
	Param string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("missing or invalid required parameter %q", e.Param)
}

// ConfigError is returned by config validation, naming the offending field.
// It is fatal at startup, never a per-job runtime error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}
