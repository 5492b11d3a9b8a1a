package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/registry"
	jobsched "github.com/bjpl/inteljobs/internal/scheduler"
)

type flakyLeader struct{ leading atomic.Bool }

func (l *flakyLeader) AcquireOrRenew(context.Context) bool { return l.leading.Load() }

type countingEnqueuer struct{ calls atomic.Int64 }

func (c *countingEnqueuer) Enqueue(_ context.Context, _ *job.Job, _ string) (string, error) {
	c.calls.Add(1)
	return "id", nil
}

type nopExec struct{}

func (nopExec) Execute(_ context.Context, _ job.Params) (job.Data, error) {
	return job.Data{}, nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestService_FiresOnlyWhileLeading(t *testing.T) {
	reg := registry.New()
	reg.Register("tick", registry.FactoryFor("tick", nopExec{}))

	enq := &countingEnqueuer{}
	sched := jobsched.New(reg, enq,
		jobsched.WithCheckInterval(5*time.Millisecond),
		jobsched.WithLogger(testLogger),
	)

	s, err := jobsched.NewSchedule("tick", job.Params{}, func(sc *jobsched.Schedule) {
		sc.Interval = 5 * time.Millisecond
	})
	require.NoError(t, err)
	sched.Add(s)

	leader := &flakyLeader{}
	svc := NewService(sched, leader, 10*time.Millisecond, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// Not leading yet: nothing fires.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), enq.calls.Load())

	leader.leading.Store(true)
	require.Eventually(t, func() bool { return enq.calls.Load() > 0 },
		time.Second, 5*time.Millisecond, "loop should fire after leadership is gained")

	// Drop leadership and verify firing stops.
	leader.leading.Store(false)
	time.Sleep(30 * time.Millisecond)
	settled := enq.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, enq.calls.Load(), "no fires after leadership is lost")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}

func TestStandaloneLeader_AlwaysLeads(t *testing.T) {
	assert.True(t, NewStandaloneLeader().AcquireOrRenew(context.Background()))
}
