package job

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/bjpl/inteljobs/internal/domain"
)

// Run executes the job through its retry state machine and always returns a
// terminal Result — failures are captured as data, never returned as a Go
// error, so one bad job can never crash a scheduler loop.
//
// Delay schedule with RetryDelay=1s, RetryBackoff=2:
//
//	retry 1 → wait 1s  (1s × 2⁰)
//	retry 2 → wait 2s  (1s × 2¹)
//	retry 3 → wait 4s  (1s × 2²)
//
// Attempts are strictly sequential; ctx cancellation during a backoff wait
// yields a CANCELLED result.
func (j *Job) Run(ctx context.Context) *domain.Result {
	started := time.Now().UTC()
	j.mu.Lock()
	j.state = domain.StateRunning
	j.startedAt = started
	j.mu.Unlock()

	if h, ok := j.exec.(StartHook); ok {
		h.OnStart(j)
	}

	for {
		data, err := j.attempt(ctx)
		if err == nil {
			res := j.finish(domain.StateCompleted, data, nil, started)
			if h, ok := j.exec.(SuccessHook); ok {
				h.OnSuccess(j, res)
			}
			return res
		}

		j.mu.Lock()
		exhausted := j.retryCount >= j.opts.MaxRetries
		j.mu.Unlock()
		if exhausted {
			res := j.finish(domain.StateFailed, nil, err, started)
			if h, ok := j.exec.(FailureHook); ok {
				h.OnFailure(j, err, res)
			}
			return res
		}

		j.mu.Lock()
		j.state = domain.StateRetrying
		j.retryCount++
		attempt := j.retryCount
		j.mu.Unlock()

		delay := j.backoff(attempt)
		if h, ok := j.exec.(RetryHook); ok {
			h.OnRetry(j, err, attempt, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return j.finish(domain.StateCancelled, nil, ctx.Err(), started)
		}

		j.setState(domain.StateRunning)
	}
}

// attempt runs Execute once. When a Timeout is configured the call is raced
// against a deadline context in its own goroutine, so a hung executor is
// actually interrupted rather than merely observed afterwards.
func (j *Job) attempt(ctx context.Context) (Data, error) {
	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if j.opts.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, j.opts.Timeout)
	}
	defer cancel()

	type outcome struct {
		data Data
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := j.exec.Execute(execCtx, j.params)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-execCtx.Done():
		if j.opts.Timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &domain.TimeoutError{JobID: j.id, Timeout: j.opts.Timeout}
		}
		return nil, execCtx.Err()
	}
}

// backoff computes the wait before the attempt-th retry (1-indexed):
// RetryDelay × RetryBackoff^(attempt−1), optionally jittered.
func (j *Job) backoff(attempt int) time.Duration {
	delay := float64(j.opts.RetryDelay) * math.Pow(j.opts.RetryBackoff, float64(attempt-1))
	if f := j.opts.JitterFrac; f > 0 {
		delay *= 1 + f*(2*rand.Float64()-1)
	}
	return time.Duration(delay)
}

func (j *Job) finish(status domain.State, data Data, cause error, started time.Time) *domain.Result {
	now := time.Now().UTC()
	meta := j.snapshotMetadata()

	res := &domain.Result{
		JobID:       j.id,
		JobType:     j.jobType,
		Status:      status,
		Data:        map[string]any{},
		StartedAt:   started,
		CompletedAt: now,
		Duration:    now.Sub(started),
		Metadata:    meta,
	}
	if data != nil {
		res.Data = data
	}
	if cause != nil {
		res.Error = errorTypeName(cause) + ": " + cause.Error()
	}
	if status == domain.StateFailed {
		meta["error_trace"] = string(debug.Stack())
	}

	j.mu.Lock()
	j.state = status
	res.RetryCount = j.retryCount
	j.result = res
	j.mu.Unlock()
	return res
}

// errorTypeName yields the bare type name of err, e.g. "TimeoutError".
func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
