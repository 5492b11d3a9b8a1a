package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bjpl/inteljobs/internal/domain"
)

// Params is the named-argument payload passed to Execute on every attempt.
// It is constant across retries.
type Params map[string]any

// Data is the key-value result payload produced by a successful Execute.
type Data map[string]any

// Executor is the unit of work a job wraps. Execute may return any error to
// signal failure; every error is a retry candidate up to the job's budget.
type Executor interface {
	Execute(ctx context.Context, params Params) (Data, error)
}

// Options configure the retry state machine. They are fixed per job type:
// factories apply their overrides at construction time.
type Options struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// RetryDelay is the base delay before the first retry. Must be > 0.
	RetryDelay time.Duration
	// RetryBackoff multiplies the delay per attempt: the n-th retry
	// (1-indexed) waits RetryDelay × RetryBackoff^(n−1). Must be ≥ 1.
	RetryBackoff float64
	// JitterFrac, when > 0, scales each delay by a uniform factor in
	// [1−JitterFrac, 1+JitterFrac]. Zero disables jitter.
	JitterFrac float64
	// Timeout bounds a single Execute attempt. Zero means unbounded.
	Timeout time.Duration
}

func defaultOptions() Options {
	return Options{
		MaxRetries:   3,
		RetryDelay:   time.Second,
		RetryBackoff: 2.0,
	}
}

// Option configures a Job at construction time.
type Option func(*Job)

func WithID(id string) Option               { return func(j *Job) { j.id = id } }
func WithMaxRetries(n int) Option           { return func(j *Job) { j.opts.MaxRetries = n } }
func WithRetryDelay(d time.Duration) Option { return func(j *Job) { j.opts.RetryDelay = d } }
func WithRetryBackoff(f float64) Option     { return func(j *Job) { j.opts.RetryBackoff = f } }
func WithJitter(frac float64) Option        { return func(j *Job) { j.opts.JitterFrac = frac } }
func WithTimeout(d time.Duration) Option    { return func(j *Job) { j.opts.Timeout = d } }
func WithOptions(o Options) Option          { return func(j *Job) { j.opts = o } }

// WithExecWrapper replaces the executor with wrap(exec). Callers layer
// observers over a factory-built executor this way; hook discovery sees the
// wrapper, so it decides which hooks to expose.
func WithExecWrapper(wrap func(Executor) Executor) Option {
	return func(j *Job) { j.exec = wrap(j.exec) }
}

// Job is one unit of work with bound parameters. Create it, call Run exactly
// once, then discard it; only the Result outlives it.
type Job struct {
	id      string
	jobType string
	params  Params
	exec    Executor
	opts    Options

	mu         sync.Mutex
	state      domain.State
	retryCount int
	startedAt  time.Time
	metadata   map[string]any
	result     *domain.Result
}

// New constructs a Job in the PENDING state. The ID is generated unless
// WithID is given; it stays stable across the run's internal retries.
func New(jobType string, exec Executor, params Params, opts ...Option) *Job {
	j := &Job{
		id:       uuid.New().String(),
		jobType:  jobType,
		params:   params,
		exec:     exec,
		opts:     defaultOptions(),
		state:    domain.StatePending,
		metadata: make(map[string]any),
	}
	if j.params == nil {
		j.params = Params{}
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) ID() string     { return j.id }
func (j *Job) Type() string   { return j.jobType }
func (j *Job) Params() Params { return j.params }
func (j *Job) Opts() Options  { return j.opts }

// State returns the current lifecycle state.
func (j *Job) State() domain.State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// RetryCount returns the number of retries performed so far.
func (j *Job) RetryCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.retryCount
}

// StartedAt returns the wall-clock start of the first attempt, zero before Run.
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// Result returns the terminal Result, nil while the job is still live.
func (j *Job) Result() *domain.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// SetMetadata records a free-form sidecar value. The accumulated map is
// merged into the terminal Result's metadata.
func (j *Job) SetMetadata(key string, value any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.metadata[key] = value
}

// GetMetadata reads a sidecar value, returning fallback when absent.
func (j *Job) GetMetadata(key string, fallback any) any {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.metadata[key]; ok {
		return v
	}
	return fallback
}

func (j *Job) setState(s domain.State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) snapshotMetadata() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]any, len(j.metadata))
	for k, v := range j.metadata {
		out[k] = v
	}
	return out
}
