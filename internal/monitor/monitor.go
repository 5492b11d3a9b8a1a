package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Entry is one ledger row: the monitor's view of a single job execution.
// Accessors hand out copies, never the live row.
type Entry struct {
	JobID       string
	JobType     string
	State       domain.State
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Result      *domain.Result
	RetryCount  int
	Params      job.Params
	Progress    float64
	Message     string
}

// ErrorRecord is one failure in the bounded recent-errors trail.
type ErrorRecord struct {
	JobID   string    `json:"job_id"`
	JobType string    `json:"job_type"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Metrics is the aggregate view over the current ledger.
type Metrics struct {
	TotalJobs     int                  `json:"total_jobs"`
	CompletedJobs int                  `json:"completed_jobs"`
	FailedJobs    int                  `json:"failed_jobs"`
	RunningJobs   int                  `json:"running_jobs"`
	MinDuration   time.Duration        `json:"min_duration"`
	AvgDuration   time.Duration        `json:"avg_duration"`
	MaxDuration   time.Duration        `json:"max_duration"`
	SuccessRate   float64              `json:"success_rate"`
	FailureRate   float64              `json:"failure_rate"`
	TotalRetries  int                  `json:"total_retries"`
	ByState       map[domain.State]int `json:"by_state"`
	ByType        map[string]int       `json:"by_type"`
	RecentErrors  []ErrorRecord        `json:"recent_errors"`
}

// Health is the coarse operational signal for the ops surface.
type Health struct {
	Status      string   `json:"status"` // healthy | degraded
	FailureRate float64  `json:"failure_rate"`
	RunningJobs int      `json:"running_jobs"`
	TotalJobs   int      `json:"total_jobs"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Healthy reports whether the signal is green.
func (h Health) Healthy() bool { return h.Status == "healthy" }

const recentErrorsLimit = 10

// Monitor is a thread-safe in-memory ledger of job executions. It is
// caller-driven: the integrating code calls Track* at the right transitions;
// nothing is observed automatically.
type Monitor struct {
	mu             sync.Mutex
	jobs           map[string]*Entry
	retention      time.Duration
	maxFailureRate float64 // percent, degraded above this
	maxRunning     int
	logger         *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithRetention(d time.Duration) Option {
	return func(m *Monitor) { m.retention = d }
}

// WithHealthThresholds overrides the degraded cutoffs: failure-rate percent
// and concurrent running-job count.
func WithHealthThresholds(failureRatePct float64, maxRunning int) Option {
	return func(m *Monitor) {
		m.maxFailureRate = failureRatePct
		m.maxRunning = maxRunning
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New creates an empty Monitor with a 7-day retention window.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		jobs:           make(map[string]*Entry),
		retention:      7 * 24 * time.Hour,
		maxFailureRate: 50,
		maxRunning:     100,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TrackStart records a job entering RUNNING.
func (m *Monitor) TrackStart(j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	started := j.StartedAt()
	if started.IsZero() {
		started = time.Now().UTC()
	}
	m.jobs[j.ID()] = &Entry{
		JobID:     j.ID(),
		JobType:   j.Type(),
		State:     domain.StateRunning,
		StartedAt: started,
		Params:    j.Params(),
	}
}

// TrackComplete records a terminal result for a previously started job.
// Unknown IDs get a fresh row so late observers still see the outcome.
func (m *Monitor) TrackComplete(j *job.Job, res *domain.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[j.ID()]
	if !ok {
		e = &Entry{JobID: j.ID(), JobType: j.Type(), StartedAt: res.StartedAt, Params: j.Params()}
		m.jobs[j.ID()] = e
	}
	e.State = res.Status
	e.CompletedAt = res.CompletedAt
	e.Duration = res.Duration
	e.Result = res
	e.RetryCount = res.RetryCount
}

// TrackRetry bumps the retry count and marks the entry RETRYING.
func (m *Monitor) TrackRetry(j *job.Job, retryCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[j.ID()]
	if !ok {
		return
	}
	e.State = domain.StateRetrying
	e.RetryCount = retryCount
}

// UpdateProgress attaches a progress percentage and message to a live entry.
func (m *Monitor) UpdateProgress(jobID string, percent float64, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return false
	}
	e.Progress = percent
	e.Message = message
	return true
}

// Status returns a copy of the ledger row for one job.
func (m *Monitor) Status(jobID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Running lists jobs currently in RUNNING or RETRYING.
func (m *Monitor) Running() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.jobs {
		if e.State == domain.StateRunning || e.State == domain.StateRetrying {
			out = append(out, *e)
		}
	}
	return out
}

// Failed lists FAILED jobs completed at or after since; a zero since means all.
func (m *Monitor) Failed(since time.Time) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.jobs {
		if e.State != domain.StateFailed {
			continue
		}
		if !since.IsZero() && e.CompletedAt.Before(since) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// History lists entries newest-first by start time, optionally filtered by
// job type and state. limit ≤ 0 means unlimited.
func (m *Monitor) History(limit int, jobType string, state domain.State) []Entry {
	m.mu.Lock()
	var all []Entry
	for _, e := range m.jobs {
		if jobType != "" && e.JobType != jobType {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		all = append(all, *e)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, k int) bool { return all[i].StartedAt.After(all[k].StartedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Metrics aggregates the ledger, optionally restricted to one job type.
// The scan is O(n); retention cleanup keeps n bounded.
func (m *Monitor) Metrics(jobType string) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := Metrics{
		ByState: make(map[domain.State]int),
		ByType:  make(map[string]int),
	}

	var durations []time.Duration
	var errored []*Entry
	for _, e := range m.jobs {
		if jobType != "" && e.JobType != jobType {
			continue
		}
		agg.TotalJobs++
		agg.ByState[e.State]++
		agg.ByType[e.JobType]++
		agg.TotalRetries += e.RetryCount

		switch e.State {
		case domain.StateCompleted:
			agg.CompletedJobs++
			durations = append(durations, e.Duration)
		case domain.StateFailed:
			agg.FailedJobs++
			errored = append(errored, e)
		case domain.StateRunning, domain.StateRetrying:
			agg.RunningJobs++
		}
	}

	if n := len(durations); n > 0 {
		min, max := durations[0], durations[0]
		var sum time.Duration
		for _, d := range durations {
			sum += d
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
		agg.MinDuration = min
		agg.MaxDuration = max
		agg.AvgDuration = sum / time.Duration(n)
	}

	if terminal := agg.CompletedJobs + agg.FailedJobs; terminal > 0 {
		agg.SuccessRate = 100 * float64(agg.CompletedJobs) / float64(terminal)
		agg.FailureRate = 100 * float64(agg.FailedJobs) / float64(terminal)
	}

	sort.Slice(errored, func(i, k int) bool {
		return errored[i].CompletedAt.After(errored[k].CompletedAt)
	})
	if len(errored) > recentErrorsLimit {
		errored = errored[:recentErrorsLimit]
	}
	for _, e := range errored {
		msg := ""
		if e.Result != nil {
			msg = e.Result.Error
		}
		agg.RecentErrors = append(agg.RecentErrors, ErrorRecord{
			JobID:   e.JobID,
			JobType: e.JobType,
			Error:   msg,
			At:      e.CompletedAt,
		})
	}
	return agg
}

// HealthStatus derives the coarse healthy/degraded signal from the current
// aggregates.
func (m *Monitor) HealthStatus() Health {
	agg := m.Metrics("")
	h := Health{
		Status:      "healthy",
		FailureRate: agg.FailureRate,
		RunningJobs: agg.RunningJobs,
		TotalJobs:   agg.TotalJobs,
	}
	if agg.CompletedJobs+agg.FailedJobs > 0 && agg.FailureRate > m.maxFailureRate {
		h.Status = "degraded"
		h.Reasons = append(h.Reasons, "failure rate above threshold")
	}
	if agg.RunningJobs > m.maxRunning {
		h.Status = "degraded"
		h.Reasons = append(h.Reasons, "too many running jobs")
	}
	return h
}

// CleanupOldJobs drops terminal entries whose completion fell outside the
// retention window. Returns the number removed.
func (m *Monitor) CleanupOldJobs() int {
	cutoff := time.Now().UTC().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.jobs {
		if e.State.IsTerminal() && !e.CompletedAt.IsZero() && e.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("ledger cleanup", slog.Int("removed", removed))
	}
	return removed
}

// StartCleanupLoop sweeps the ledger every interval until stop is closed.
func (m *Monitor) StartCleanupLoop(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.CleanupOldJobs()
			}
		}
	}()
}
