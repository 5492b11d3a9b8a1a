package domain

import "time"

// Result is the terminal record of one job run, including all of its
// internal retry attempts. Once built it is never mutated.
type Result struct {
	JobID       string         `json:"job_id"`
	JobType     string         `json:"job_type"`
	Status      State          `json:"status"`
	Data        map[string]any `json:"data"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	// Duration is wall-clock time from the first attempt start to the
	// terminal transition. It accumulates across retries.
	Duration   time.Duration  `json:"duration"`
	RetryCount int            `json:"retry_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OK reports whether the run reached COMPLETED.
func (r *Result) OK() bool {
	return r != nil && r.Status == StateCompleted
}
