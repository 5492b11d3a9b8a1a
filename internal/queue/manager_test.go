package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeBackend struct {
	mu        sync.Mutex
	envelopes []*Envelope
	results   map[string]*domain.Result
	states    map[string]domain.State
	enqErr    error
	cancelled []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results: make(map[string]*domain.Result),
		states:  make(map[string]domain.State),
	}
}

func (f *fakeBackend) Enqueue(_ context.Context, env *Envelope) error {
	if f.enqErr != nil {
		return f.enqErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, env)
	f.states[env.JobID] = domain.StatePending
	return nil
}

func (f *fakeBackend) Consume(_ context.Context, _ string, _ ConsumeFunc) error { return nil }

func (f *fakeBackend) Status(_ context.Context, jobID string) (domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[jobID]
	if !ok {
		return "", &domain.JobNotFoundError{JobID: jobID}
	}
	return s, nil
}

func (f *fakeBackend) Result(_ context.Context, jobID string) (*domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[jobID]
	if !ok {
		return nil, &domain.JobNotFoundError{JobID: jobID}
	}
	return res, nil
}

func (f *fakeBackend) Cancel(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return true, nil
}

func (f *fakeBackend) Length(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.envelopes)), nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) setResult(res *domain.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[res.JobID] = res
}

type fakeLimiter struct {
	allow bool
	err   error
	limit int
}

func (l *fakeLimiter) Allow(_ context.Context, _ string) (bool, error) { return l.allow, l.err }
func (l *fakeLimiter) Limit() int                                      { return l.limit }

type nopExec struct{}

func (nopExec) Execute(_ context.Context, _ job.Params) (job.Data, error) {
	return job.Data{}, nil
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestEnqueue_EnvelopePreservesIdentity(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, WithLogger(testLogger), WithDefaultQueue("ingest"))

	j := job.New("api_ingestion", nopExec{}, job.Params{"ticker": "COUR", "pages": 3})
	taskID, err := m.Enqueue(context.Background(), j, "")
	require.NoError(t, err)

	assert.Equal(t, j.ID(), taskID, "task ID is the job ID")
	require.Len(t, backend.envelopes, 1)
	env := backend.envelopes[0]
	assert.Equal(t, j.ID(), env.JobID)
	assert.Equal(t, "api_ingestion", env.JobType)
	assert.Equal(t, "ingest", env.Queue)
	assert.Equal(t, job.Params{"ticker": "COUR", "pages": 3}, env.Params,
		"params must never be altered in transit")
}

func TestEnqueue_ExplicitQueueWins(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, WithLogger(testLogger))

	_, err := m.Enqueue(context.Background(), job.New("x", nopExec{}, nil), "priority")
	require.NoError(t, err)
	assert.Equal(t, "priority", backend.envelopes[0].Queue)
}

func TestEnqueue_RateLimited(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend,
		WithLogger(testLogger),
		WithRateLimiter(&fakeLimiter{allow: false, limit: 10}),
	)

	_, err := m.Enqueue(context.Background(), job.New("api_ingestion", nopExec{}, nil), "")
	require.Error(t, err)

	var limited *domain.RateLimitExceededError
	assert.True(t, errors.As(err, &limited))
	assert.Equal(t, 10, limited.Limit)
	assert.Empty(t, backend.envelopes)
}

func TestEnqueue_LimiterErrorAllows(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend,
		WithLogger(testLogger),
		WithRateLimiter(&fakeLimiter{err: errors.New("redis down")}),
	)

	_, err := m.Enqueue(context.Background(), job.New("x", nopExec{}, nil), "")
	require.NoError(t, err, "limiter failure must not drop work")
	assert.Len(t, backend.envelopes, 1)
}

func TestEnqueue_BackendErrorPropagates(t *testing.T) {
	backend := newFakeBackend()
	backend.enqErr = errors.New("broker unreachable")
	m := NewManager(backend, WithLogger(testLogger))

	_, err := m.Enqueue(context.Background(), job.New("x", nopExec{}, nil), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestGetResult_NotReadyIsNil(t *testing.T) {
	m := NewManager(newFakeBackend(), WithLogger(testLogger))

	res, err := m.GetResult(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestWaitForResult_ReturnsWhenReady(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, WithLogger(testLogger))

	go func() {
		time.Sleep(30 * time.Millisecond)
		backend.setResult(&domain.Result{JobID: "j1", Status: domain.StateCompleted})
	}()

	res, err := m.WaitForResult(context.Background(), "j1", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.StateCompleted, res.Status)
}

func TestWaitForResult_TimesOutNil(t *testing.T) {
	m := NewManager(newFakeBackend(), WithLogger(testLogger))

	res, err := m.WaitForResult(context.Background(), "never", 30*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCancel_DelegatesToBackend(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend, WithLogger(testLogger))

	ok, err := m.Cancel(context.Background(), "j9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"j9"}, backend.cancelled)
}
