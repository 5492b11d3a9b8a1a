package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/monitor"
	"github.com/bjpl/inteljobs/internal/postgres"
	"github.com/bjpl/inteljobs/internal/queue"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
	"github.com/bjpl/inteljobs/internal/registry"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeStore struct {
	states  map[string]domain.State
	results map[string]*domain.Result
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:  make(map[string]domain.State),
		results: make(map[string]*domain.Result),
	}
}

func (s *fakeStore) SetState(_ context.Context, id string, st domain.State) error {
	s.states[id] = st
	return nil
}
func (s *fakeStore) GetState(_ context.Context, id string) (domain.State, error) {
	st, ok := s.states[id]
	if !ok {
		return "", &domain.JobNotFoundError{JobID: id}
	}
	return st, nil
}
func (s *fakeStore) SetResult(_ context.Context, res *domain.Result) error {
	s.results[res.JobID] = res
	return nil
}
func (s *fakeStore) GetResult(_ context.Context, id string) (*domain.Result, error) {
	res, ok := s.results[id]
	if !ok {
		return nil, &domain.JobNotFoundError{JobID: id}
	}
	return res, nil
}
func (s *fakeStore) IncrPending(_ context.Context, _ string) error         { return nil }
func (s *fakeStore) DecrPending(_ context.Context, _ string) error         { return nil }
func (s *fakeStore) PendingLen(_ context.Context, _ string) (int64, error) { return 0, nil }

var _ redisstore.StateStore = (*fakeStore)(nil)

type fakeRepo struct {
	executions []*postgres.Execution
}

func (r *fakeRepo) Record(_ context.Context, exec *postgres.Execution) error {
	r.executions = append(r.executions, exec)
	return nil
}
func (r *fakeRepo) GetByJobID(_ context.Context, id string) (*postgres.Execution, error) {
	return nil, &domain.JobNotFoundError{JobID: id}
}
func (r *fakeRepo) ListRecent(_ context.Context, _ string, _ int) ([]*postgres.Execution, error) {
	return nil, nil
}

var _ postgres.ExecutionRepository = (*fakeRepo)(nil)

// scriptedExec fails per the errs script, then succeeds.
type scriptedExec struct {
	errs  []error
	calls int
}

func (e *scriptedExec) Execute(_ context.Context, _ job.Params) (job.Data, error) {
	var err error
	if e.calls < len(e.errs) {
		err = e.errs[e.calls]
	}
	e.calls++
	if err != nil {
		return nil, err
	}
	return job.Data{"done": true}, nil
}

// ledgerPeekExec snapshots the monitor entry for its job at the top of every
// attempt, capturing what the ledger showed while the run was live.
type ledgerPeekExec struct {
	scriptedExec
	mon      *monitor.Monitor
	jobID    string
	observed []monitor.Entry
}

func (e *ledgerPeekExec) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	if entry, ok := e.mon.Status(e.jobID); ok {
		e.observed = append(e.observed, entry)
	}
	return e.scriptedExec.Execute(ctx, params)
}

// hookedExec counts its own lifecycle hook invocations.
type hookedExec struct {
	scriptedExec
	starts    int
	retries   int
	successes int
}

func (e *hookedExec) OnStart(_ *job.Job)                                  { e.starts++ }
func (e *hookedExec) OnRetry(_ *job.Job, _ error, _ int, _ time.Duration) { e.retries++ }
func (e *hookedExec) OnSuccess(_ *job.Job, _ *domain.Result)              { e.successes++ }

// ── helpers ───────────────────────────────────────────────────────────────────

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestWorker(store *fakeStore, reg *registry.Registry, opts ...Option) *Worker {
	base := []Option{WithLogger(testLogger)}
	return NewWorker("test-worker", nil, store, reg, append(base, opts...)...)
}

func fastOpts() []job.Option {
	return []job.Option{job.WithMaxRetries(2), job.WithRetryDelay(time.Millisecond)}
}

func envelope(id, jobType string) *queue.Envelope {
	return &queue.Envelope{
		JobID:      id,
		JobType:    jobType,
		Params:     job.Params{"n": 1},
		Queue:      "default",
		EnqueuedAt: time.Now().UTC(),
	}
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestWorker_SuccessPath(t *testing.T) {
	store := newFakeStore()
	repo := &fakeRepo{}

	reg := registry.New()
	reg.Register("echo", registry.FactoryFor("echo", &scriptedExec{}, fastOpts()...))

	w := newTestWorker(store, reg, WithRepository(repo))
	err := w.processEnvelope(context.Background(), envelope("job-1", "echo"))
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, store.states["job-1"])
	require.Contains(t, store.results, "job-1")
	assert.Equal(t, domain.StateCompleted, store.results["job-1"].Status)

	require.Len(t, repo.executions, 1)
	assert.Equal(t, domain.StateCompleted, repo.executions[0].Status)
	assert.Equal(t, 1, repo.executions[0].Attempts)
	assert.Equal(t, "test-worker", repo.executions[0].WorkerID)
}

func TestWorker_ExhaustedRetries(t *testing.T) {
	store := newFakeStore()
	repo := &fakeRepo{}

	sentinel := errors.New("executor error")
	reg := registry.New()
	reg.Register("flaky", registry.FactoryFor("flaky",
		&scriptedExec{errs: []error{sentinel, sentinel, sentinel}},
		fastOpts()...,
	))

	w := newTestWorker(store, reg, WithRepository(repo))
	err := w.processEnvelope(context.Background(), envelope("job-2", "flaky"))
	require.NoError(t, err) // processEnvelope always returns nil

	assert.Equal(t, domain.StateFailed, store.states["job-2"])
	res := store.results["job-2"]
	require.NotNil(t, res)
	assert.Equal(t, 2, res.RetryCount)
	assert.Contains(t, res.Error, "executor error")

	require.Len(t, repo.executions, 1)
	assert.Equal(t, 3, repo.executions[0].Attempts)
	assert.NotEmpty(t, repo.executions[0].Error)
}

func TestWorker_SucceedsAfterTransientFailure(t *testing.T) {
	store := newFakeStore()

	reg := registry.New()
	reg.Register("flaky", registry.FactoryFor("flaky",
		&scriptedExec{errs: []error{errors.New("transient")}},
		fastOpts()...,
	))

	w := newTestWorker(store, reg)
	err := w.processEnvelope(context.Background(), envelope("job-3", "flaky"))
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, store.states["job-3"])
	assert.Equal(t, 1, store.results["job-3"].RetryCount)
}

func TestWorker_Idempotency_TerminalStateSkipped(t *testing.T) {
	store := newFakeStore()
	store.states["job-4"] = domain.StateCompleted

	exec := &scriptedExec{}
	reg := registry.New()
	reg.Register("echo", registry.FactoryFor("echo", exec))

	w := newTestWorker(store, reg)
	err := w.processEnvelope(context.Background(), envelope("job-4", "echo"))
	require.NoError(t, err)

	assert.Equal(t, 0, exec.calls, "executor must not run for an already-terminal job")
}

func TestWorker_CancelledBeforePickupSkipped(t *testing.T) {
	store := newFakeStore()
	store.states["job-5"] = domain.StateCancelled

	exec := &scriptedExec{}
	reg := registry.New()
	reg.Register("echo", registry.FactoryFor("echo", exec))

	w := newTestWorker(store, reg)
	require.NoError(t, w.processEnvelope(context.Background(), envelope("job-5", "echo")))
	assert.Equal(t, 0, exec.calls)
}

func TestWorker_UnknownJobType_ImmediateFailedResult(t *testing.T) {
	store := newFakeStore()

	w := newTestWorker(store, registry.New())
	err := w.processEnvelope(context.Background(), envelope("job-6", "no-such-type"))
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, store.states["job-6"])
	res := store.results["job-6"]
	require.NotNil(t, res)
	assert.Contains(t, res.Error, "UnknownJobTypeError")
}

func TestWorker_JobIDPreservedFromEnvelope(t *testing.T) {
	store := newFakeStore()

	reg := registry.New()
	reg.Register("echo", registry.FactoryFor("echo", &scriptedExec{}))

	w := newTestWorker(store, reg)
	require.NoError(t, w.processEnvelope(context.Background(), envelope("fixed-id", "echo")))

	res := store.results["fixed-id"]
	require.NotNil(t, res)
	assert.Equal(t, "fixed-id", res.JobID)
}

func TestWorker_MonitorTracksOutcome(t *testing.T) {
	store := newFakeStore()
	mon := monitor.New()

	reg := registry.New()
	reg.Register("echo", registry.FactoryFor("echo", &scriptedExec{}))

	w := newTestWorker(store, reg, WithMonitor(mon))
	require.NoError(t, w.processEnvelope(context.Background(), envelope("job-7", "echo")))

	entry, ok := mon.Status("job-7")
	require.True(t, ok)
	assert.Equal(t, domain.StateCompleted, entry.State)

	agg := mon.Metrics("")
	assert.Equal(t, 1, agg.CompletedJobs)
}

func TestWorker_MonitorObservesRetryTransitions(t *testing.T) {
	store := newFakeStore()
	mon := monitor.New()

	exec := &ledgerPeekExec{
		scriptedExec: scriptedExec{errs: []error{errors.New("transient")}},
		mon:          mon,
		jobID:        "job-8",
	}
	reg := registry.New()
	reg.Register("flaky", registry.FactoryFor("flaky", exec, fastOpts()...))

	w := newTestWorker(store, reg, WithMonitor(mon))
	require.NoError(t, w.processEnvelope(context.Background(), envelope("job-8", "flaky")))

	require.Len(t, exec.observed, 2)
	assert.Equal(t, domain.StateRunning, exec.observed[0].State)
	assert.Equal(t, 0, exec.observed[0].RetryCount)
	assert.Equal(t, domain.StateRetrying, exec.observed[1].State,
		"ledger shows RETRYING while the backoff chain is live")
	assert.Equal(t, 1, exec.observed[1].RetryCount)

	entry, ok := mon.Status("job-8")
	require.True(t, ok)
	assert.Equal(t, domain.StateCompleted, entry.State)
	assert.Equal(t, 1, entry.RetryCount)
}

func TestWorker_RetryObserverForwardsInnerHooks(t *testing.T) {
	store := newFakeStore()
	mon := monitor.New()

	exec := &hookedExec{scriptedExec: scriptedExec{errs: []error{errors.New("transient")}}}
	reg := registry.New()
	reg.Register("flaky", registry.FactoryFor("flaky", exec, fastOpts()...))

	w := newTestWorker(store, reg, WithMonitor(mon))
	require.NoError(t, w.processEnvelope(context.Background(), envelope("job-9", "flaky")))

	assert.Equal(t, 1, exec.starts, "inner OnStart forwarded through the observer")
	assert.Equal(t, 1, exec.retries, "inner OnRetry forwarded through the observer")
	assert.Equal(t, 1, exec.successes, "inner OnSuccess forwarded through the observer")
}
