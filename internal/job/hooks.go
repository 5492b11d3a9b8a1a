package job

import (
	"time"

	"github.com/bjpl/inteljobs/internal/domain"
)

// Lifecycle hooks are optional: an Executor that implements one of these
// interfaces gets called at the matching transition. Within one Run,
// OnStart precedes the first attempt, each OnRetry precedes its backoff
// sleep, and exactly one of OnSuccess/OnFailure fires last. Hook panics are
// not guarded and propagate to the caller of Run.

// StartHook fires once, after the PENDING → RUNNING transition.
type StartHook interface {
	OnStart(j *Job)
}

// SuccessHook fires once with the terminal Result when the run completes.
type SuccessHook interface {
	OnSuccess(j *Job, res *domain.Result)
}

// FailureHook fires once with the final error and Result when retries are
// exhausted.
type FailureHook interface {
	OnFailure(j *Job, err error, res *domain.Result)
}

// RetryHook fires before each backoff sleep. attempt is the 1-indexed retry
// about to be made; delay is the computed backoff wait.
type RetryHook interface {
	OnRetry(j *Job, err error, attempt int, delay time.Duration)
}
