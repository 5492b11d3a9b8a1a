package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/monitor"
	"github.com/bjpl/inteljobs/internal/postgres"
	"github.com/bjpl/inteljobs/internal/queue"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
	"github.com/bjpl/inteljobs/internal/registry"
	"github.com/bjpl/inteljobs/pkg/telemetry"
)

// Worker consumes job envelopes from a queue backend and executes them.
// The retry loop lives inside the job itself; the worker's responsibility is
// reconstruction, state bookkeeping, and recording the terminal result.
type Worker struct {
	backend   queue.Backend
	store     redisstore.StateStore
	registry  *registry.Registry
	monitor   *monitor.Monitor             // nil = tracking disabled
	repo      postgres.ExecutionRepository // nil = no durable log
	workerID  string
	queueName string
	logger    *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

func WithMonitor(m *monitor.Monitor) Option                { return func(w *Worker) { w.monitor = m } }
func WithRepository(r postgres.ExecutionRepository) Option { return func(w *Worker) { w.repo = r } }
func WithQueue(name string) Option                         { return func(w *Worker) { w.queueName = name } }
func WithLogger(l *slog.Logger) Option                     { return func(w *Worker) { w.logger = l } }

// NewWorker constructs a Worker with the given dependencies and options.
func NewWorker(
	workerID string,
	backend queue.Backend,
	store redisstore.StateStore,
	reg *registry.Registry,
	opts ...Option,
) *Worker {
	w := &Worker{
		workerID:  workerID,
		backend:   backend,
		store:     store,
		registry:  reg,
		queueName: "default",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts consuming and processing envelopes. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.backend.Consume(ctx, w.queueName, w.processEnvelope)
}

// Wait blocks until all in-flight jobs finish. Call after Run returns.
func (w *Worker) Wait() { w.wg.Wait() }

// processEnvelope is the queue ConsumeFunc — called for each envelope.
// Always returns nil: a job that exhausts its retries is a recorded FAILED
// result, not a redelivery.
func (w *Worker) processEnvelope(consumerCtx context.Context, env *queue.Envelope) error {
	ctx, span := otel.Tracer("worker").Start(consumerCtx, "worker.process_job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", env.JobID),
		attribute.String("job.type", env.JobType),
		attribute.String("worker.id", w.workerID),
	)

	log := w.logger.With(
		slog.String("job_id", env.JobID),
		slog.String("job_type", env.JobType),
		slog.String("worker_id", w.workerID),
	)

	// Idempotency: a terminal state means a replayed delivery or a cancel
	// that landed before pickup. Skip either way.
	if s, err := w.store.GetState(ctx, env.JobID); err == nil && s.IsTerminal() {
		log.Info("job already terminal, skipping", slog.String("state", string(s)))
		return nil
	}

	createOpts := []job.Option{job.WithID(env.JobID)}
	if w.monitor != nil {
		createOpts = append(createOpts, job.WithExecWrapper(func(e job.Executor) job.Executor {
			return &retryObserver{inner: e, monitor: w.monitor}
		}))
	}
	j, err := w.registry.Create(env.JobType, env.Params, createOpts...)
	if err != nil {
		log.Error("no executor for job type", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown job type")
		telemetry.WorkerUnknownTypeTotal.Inc()
		w.recordUnknownType(ctx, env, err)
		return nil
	}

	if err := w.store.SetState(ctx, env.JobID, domain.StateRunning); err != nil {
		log.Error("failed to set RUNNING state", slog.String("error", err.Error()))
	}

	w.wg.Add(1)
	w.inFlight.Add(1)
	telemetry.WorkerJobsInFlight.Inc()
	defer func() {
		telemetry.WorkerJobsInFlight.Dec()
		w.inFlight.Add(-1)
		w.wg.Done()
	}()

	if w.monitor != nil {
		w.monitor.TrackStart(j)
	}

	// Run on a fresh context carrying the span: per-attempt timeouts belong
	// to the job, not to consumer shutdown.
	res := j.Run(trace.ContextWithSpan(context.Background(), span))

	telemetry.WorkerJobDurationSeconds.WithLabelValues(env.JobType).Observe(res.Duration.Seconds())
	telemetry.WorkerJobsProcessed.WithLabelValues(env.JobType, string(res.Status)).Inc()
	if res.RetryCount > 0 {
		telemetry.WorkerRetriesTotal.WithLabelValues(env.JobType).Add(float64(res.RetryCount))
	}

	if res.OK() {
		log.Info("job completed",
			slog.Int64("duration_ms", res.Duration.Milliseconds()),
			slog.Int("retry_count", res.RetryCount),
		)
	} else {
		log.Error("job failed",
			slog.String("state", string(res.Status)),
			slog.Int("retry_count", res.RetryCount),
			slog.String("error", res.Error),
		)
		span.RecordError(&jobFailedError{res.Error})
		span.SetStatus(codes.Error, "job did not complete")
	}

	w.finish(ctx, env, j, res, log)
	return nil
}

// finish persists the terminal result everywhere it is expected: the state
// store for pollers, the monitor ledger, and the durable execution log.
func (w *Worker) finish(ctx context.Context, env *queue.Envelope, j *job.Job, res *domain.Result, log *slog.Logger) {
	if err := w.store.SetResult(ctx, res); err != nil {
		log.Error("failed to store result", slog.String("error", err.Error()))
	}
	if err := w.store.SetState(ctx, env.JobID, res.Status); err != nil {
		log.Error("failed to set terminal state", slog.String("error", err.Error()))
	}

	if w.monitor != nil {
		w.monitor.TrackComplete(j, res)
	}

	if w.repo != nil {
		exec := &postgres.Execution{
			JobID:      env.JobID,
			JobType:    env.JobType,
			Queue:      env.Queue,
			WorkerID:   w.workerID,
			Attempts:   res.RetryCount + 1,
			Status:     res.Status,
			DurationMs: res.Duration.Milliseconds(),
			Error:      res.Error,
			ExecutedAt: res.CompletedAt,
		}
		if err := w.repo.Record(ctx, exec); err != nil {
			log.Error("failed to record execution", slog.String("error", err.Error()))
		}
	}
}

// recordUnknownType writes an immediate FAILED result so pollers of a
// misconfigured enqueue do not wait forever.
func (w *Worker) recordUnknownType(ctx context.Context, env *queue.Envelope, cause error) {
	now := time.Now().UTC()
	res := &domain.Result{
		JobID:       env.JobID,
		JobType:     env.JobType,
		Status:      domain.StateFailed,
		Error:       "UnknownJobTypeError: " + cause.Error(),
		StartedAt:   now,
		CompletedAt: now,
	}
	if err := w.store.SetResult(ctx, res); err != nil {
		w.logger.Error("failed to store unknown-type result",
			slog.String("job_id", env.JobID),
			slog.String("error", err.Error()),
		)
	}
	_ = w.store.SetState(ctx, env.JobID, domain.StateFailed)
}

// jobFailedError adapts the result's error string for span recording.
type jobFailedError struct{ msg string }

func (e *jobFailedError) Error() string { return e.msg }

// retryObserver layers the monitor over a factory-built executor so retry
// transitions land in the ledger as they happen, not only at the terminal
// TrackComplete. The executor's own hooks keep firing when it defines them.
type retryObserver struct {
	inner   job.Executor
	monitor *monitor.Monitor
}

func (o *retryObserver) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	return o.inner.Execute(ctx, params)
}

func (o *retryObserver) OnStart(j *job.Job) {
	if h, ok := o.inner.(job.StartHook); ok {
		h.OnStart(j)
	}
}

func (o *retryObserver) OnRetry(j *job.Job, err error, attempt int, delay time.Duration) {
	o.monitor.TrackRetry(j, attempt)
	if h, ok := o.inner.(job.RetryHook); ok {
		h.OnRetry(j, err, attempt, delay)
	}
}

func (o *retryObserver) OnSuccess(j *job.Job, res *domain.Result) {
	if h, ok := o.inner.(job.SuccessHook); ok {
		h.OnSuccess(j, res)
	}
}

func (o *retryObserver) OnFailure(j *job.Job, err error, res *domain.Result) {
	if h, ok := o.inner.(job.FailureHook); ok {
		h.OnFailure(j, err, res)
	}
}
