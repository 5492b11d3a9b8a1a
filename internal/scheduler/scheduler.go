package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/registry"
	"github.com/bjpl/inteljobs/pkg/telemetry"
)

const stopTimeout = 5 * time.Second

// Enqueuer hands a constructed job to the queue. Satisfied by queue.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job, queueName string) (string, error)
}

// Scheduler polls its schedule table once per check interval and enqueues
// every due schedule's job. One failing schedule never blocks the others.
type Scheduler struct {
	registry      *registry.Registry
	queue         Enqueuer
	checkInterval time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	schedules map[string]*Schedule

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.checkInterval = d }
}
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New constructs a stopped Scheduler.
func New(reg *registry.Registry, queue Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:      reg,
		queue:         queue,
		checkInterval: time.Second,
		logger:        slog.Default(),
		schedules:     make(map[string]*Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a schedule. Safe to call while the loop is running.
func (s *Scheduler) Add(sched *Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
}

// Remove drops a schedule, reporting whether it existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.schedules[id]
	delete(s.schedules, id)
	return ok
}

// Enable re-arms a schedule.
func (s *Scheduler) Enable(id string) bool { return s.setEnabled(id, true) }

// Disable gates a schedule off; disabled schedules never fire.
func (s *Scheduler) Disable(id string) bool { return s.setEnabled(id, false) }

func (s *Scheduler) setEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return false
	}
	sched.Enabled = enabled
	return true
}

// Get returns a copy of the schedule.
func (s *Scheduler) Get(id string) (Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, false
	}
	return *sched, true
}

// List returns copies of all schedules.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// Start launches the background loop. The first tick runs immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop signals the loop and joins it, waiting at most stopTimeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.logger.Error("scheduler loop did not stop within timeout")
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*Schedule
	for _, sched := range s.schedules {
		if sched.ShouldRun(now) {
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		if err := s.fire(ctx, sched); err != nil {
			telemetry.SchedulerErrorsTotal.Inc()
			s.logger.Error("schedule fire failed",
				slog.String("schedule_id", sched.ID),
				slog.String("job_name", sched.JobName),
				slog.String("error", err.Error()),
			)
		}
	}
}

// fire constructs and enqueues the schedule's job, then stamps the run.
func (s *Scheduler) fire(ctx context.Context, sched *Schedule) error {
	j, err := s.registry.Create(sched.JobName, sched.Params)
	if err != nil {
		return err
	}
	if _, err := s.queue.Enqueue(ctx, j, sched.Queue); err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	degraded := sched.MarkRun(now)
	next := sched.NextRun
	s.mu.Unlock()
	if degraded != nil {
		s.logger.Warn("next-run evaluation degraded to +1h fallback",
			slog.String("schedule_id", sched.ID),
			slog.String("error", degraded.Error()),
		)
	}

	telemetry.SchedulerFiredTotal.WithLabelValues(sched.JobName).Inc()
	s.logger.Info("schedule fired",
		slog.String("schedule_id", sched.ID),
		slog.String("job_name", sched.JobName),
		slog.String("job_id", j.ID()),
		slog.Time("next_run", next),
	)
	return nil
}

// RunOnce fires the schedule immediately, ignoring Enabled and NextRun.
func (s *Scheduler) RunOnce(ctx context.Context, id string) error {
	s.mu.Lock()
	sched, ok := s.schedules[id]
	s.mu.Unlock()
	if !ok {
		return &domain.JobNotFoundError{JobID: id}
	}
	return s.fire(ctx, sched)
}
