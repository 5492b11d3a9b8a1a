package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
	"github.com/bjpl/inteljobs/pkg/telemetry"
)

// Envelope is the serialized enqueue request. Both backends marshal and
// unmarshal it identically: the job arrives at the worker with the same
// job_id and params it left with.
type Envelope struct {
	JobID      string     `json:"job_id"`
	JobType    string     `json:"job_type"`
	Params     job.Params `json:"params"`
	Queue      string     `json:"queue"`
	Priority   int        `json:"priority"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// ConsumeFunc processes one dequeued envelope. Returning an error tells the
// backend not to acknowledge the entry where its delivery model allows it.
type ConsumeFunc func(ctx context.Context, env *Envelope) error

// Backend is an interchangeable queue transport. Enqueue is fire-and-forget;
// callers poll Status/Result for completion.
type Backend interface {
	Enqueue(ctx context.Context, env *Envelope) error
	// Consume blocks, feeding envelopes from the named queue to fn until
	// ctx is cancelled.
	Consume(ctx context.Context, queue string, fn ConsumeFunc) error
	Status(ctx context.Context, jobID string) (domain.State, error)
	// Result returns the terminal result, or JobNotFoundError while the
	// job is still pending or running.
	Result(ctx context.Context, jobID string) (*domain.Result, error)
	// Cancel is best-effort: work already dispatched to a worker is not
	// interrupted.
	Cancel(ctx context.Context, jobID string) (bool, error)
	Length(ctx context.Context, queue string) (int64, error)
	Close() error
}

// Manager fronts a Backend with rate limiting, defaults, and polling.
type Manager struct {
	backend         Backend
	limiter         redisstore.RateLimiter // nil = disabled
	defaultQueue    string
	defaultPriority int
	logger          *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithRateLimiter(l redisstore.RateLimiter) ManagerOption {
	return func(m *Manager) { m.limiter = l }
}
func WithDefaultQueue(name string) ManagerOption {
	return func(m *Manager) { m.defaultQueue = name }
}
func WithDefaultPriority(p int) ManagerOption {
	return func(m *Manager) { m.defaultPriority = p }
}
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager wraps a backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:         backend,
		defaultQueue:    "default",
		defaultPriority: 5,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue serializes the job to the named queue ("" picks the default) and
// returns the task ID, which is the job's own ID. Rate-limit rejections
// surface as RateLimitExceededError; the caller decides whether to shed or
// defer.
func (m *Manager) Enqueue(ctx context.Context, j *job.Job, queueName string) (string, error) {
	if queueName == "" {
		queueName = m.defaultQueue
	}

	if m.limiter != nil {
		allowed, err := m.limiter.Allow(ctx, j.Type())
		if err != nil {
			// Limiter trouble must not drop work; log and let it through.
			m.logger.Error("rate limiter error, allowing enqueue",
				slog.String("job_type", j.Type()),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			telemetry.QueueRateLimitedTotal.Inc()
			return "", &domain.RateLimitExceededError{JobType: j.Type(), Limit: m.limiter.Limit()}
		}
	}

	env := &Envelope{
		JobID:      j.ID(),
		JobType:    j.Type(),
		Params:     j.Params(),
		Queue:      queueName,
		Priority:   m.defaultPriority,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := m.backend.Enqueue(ctx, env); err != nil {
		return "", fmt.Errorf("enqueue %s to %s: %w", j.ID(), queueName, err)
	}

	telemetry.QueueEnqueuedTotal.WithLabelValues(j.Type(), queueName).Inc()
	m.logger.Info("job enqueued",
		slog.String("job_id", j.ID()),
		slog.String("job_type", j.Type()),
		slog.String("queue", queueName),
	)
	return j.ID(), nil
}

// GetStatus reports the job's current state.
func (m *Manager) GetStatus(ctx context.Context, taskID string) (domain.State, error) {
	return m.backend.Status(ctx, taskID)
}

// GetResult returns the terminal result, or nil while the job is still live.
func (m *Manager) GetResult(ctx context.Context, taskID string) (*domain.Result, error) {
	res, err := m.backend.Result(ctx, taskID)
	if err != nil {
		var notFound *domain.JobNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil // not ready yet
		}
		return nil, err
	}
	return res, nil
}

// Cancel asks the backend to drop the task before a worker picks it up.
func (m *Manager) Cancel(ctx context.Context, taskID string) (bool, error) {
	return m.backend.Cancel(ctx, taskID)
}

// QueueLength reports the pending backlog of the named queue.
func (m *Manager) QueueLength(ctx context.Context, queueName string) (int64, error) {
	if queueName == "" {
		queueName = m.defaultQueue
	}
	return m.backend.Length(ctx, queueName)
}

// WaitForResult polls GetResult every pollInterval until the result lands or
// timeout elapses. Returns nil on timeout; the job keeps running regardless.
func (m *Manager) WaitForResult(ctx context.Context, taskID string, timeout, pollInterval time.Duration) (*domain.Result, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		res, err := m.GetResult(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close releases the backend's transport resources.
func (m *Manager) Close() error {
	return m.backend.Close()
}
