package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bjpl/inteljobs/internal/job"
)

// Schedule is a recurring or one-shot rule that, when due, causes a job to
// be constructed and enqueued. Exactly one of CronExpr, Interval, or AtTime
// may be set; with none set the schedule fires once and auto-disables.
type Schedule struct {
	ID      string
	JobName string
	Params  job.Params
	Queue   string

	CronExpr string        // standard 5-field cron expression
	Interval time.Duration // fixed period
	AtTime   string        // daily "HH:MM", 24h clock

	Enabled  bool
	LastRun  time.Time // zero until the first fire
	NextRun  time.Time
	RunCount int
}

// NewSchedule validates the trigger kind and computes the initial NextRun.
func NewSchedule(jobName string, params job.Params, configure func(*Schedule)) (*Schedule, error) {
	if jobName == "" {
		return nil, errors.New("schedule requires a job name")
	}
	s := &Schedule{
		ID:      uuid.New().String(),
		JobName: jobName,
		Params:  params,
		Enabled: true,
	}
	if configure != nil {
		configure(s)
	}

	kinds := 0
	if s.CronExpr != "" {
		kinds++
	}
	if s.Interval > 0 {
		kinds++
	}
	if s.AtTime != "" {
		kinds++
	}
	if kinds > 1 {
		return nil, errors.New("schedule trigger kinds cron/interval/at_time are mutually exclusive")
	}
	if s.CronExpr != "" {
		if _, err := cron.ParseStandard(s.CronExpr); err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", s.CronExpr, err)
		}
	}
	if s.AtTime != "" {
		if _, err := time.Parse("15:04", s.AtTime); err != nil {
			return nil, fmt.Errorf("parse at_time %q: %w", s.AtTime, err)
		}
	}

	next, _ := s.nextRunAfter(time.Now())
	s.NextRun = next
	return s, nil
}

// ShouldRun reports whether the schedule is due: enabled and NextRun ≤ now.
func (s *Schedule) ShouldRun(now time.Time) bool {
	return s.Enabled && !s.NextRun.After(now)
}

// oneShot is a schedule with no trigger kind: it fires once, immediately.
func (s *Schedule) oneShot() bool {
	return s.CronExpr == "" && s.Interval == 0 && s.AtTime == ""
}

// nextRunAfter computes the next due time. A non-nil error means evaluation
// degraded to the +1h fallback; the returned time is already the fallback.
func (s *Schedule) nextRunAfter(now time.Time) (time.Time, error) {
	switch {
	case s.CronExpr != "":
		expr, err := cron.ParseStandard(s.CronExpr)
		if err != nil {
			return now.Add(time.Hour), fmt.Errorf("parse cron %q: %w", s.CronExpr, err)
		}
		base := now
		if !s.LastRun.IsZero() && s.LastRun.After(base) {
			base = s.LastRun
		}
		return expr.Next(base), nil

	case s.Interval > 0:
		if s.LastRun.IsZero() {
			return now, nil // fires immediately on creation
		}
		return s.LastRun.Add(s.Interval), nil

	case s.AtTime != "":
		at, err := time.Parse("15:04", s.AtTime)
		if err != nil {
			return now.Add(time.Hour), fmt.Errorf("parse at_time %q: %w", s.AtTime, err)
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			at.Hour(), at.Minute(), 0, 0, now.Location())
		if candidate.After(now) {
			return candidate, nil
		}
		return candidate.AddDate(0, 0, 1), nil

	default:
		return now, nil
	}
}

// MarkRun records a fire: stamps LastRun, bumps RunCount, recomputes
// NextRun. One-shot schedules auto-disable so they never become due again.
func (s *Schedule) MarkRun(now time.Time) error {
	s.LastRun = now
	s.RunCount++
	if s.oneShot() {
		s.Enabled = false
	}
	next, err := s.nextRunAfter(now)
	s.NextRun = next
	return err
}
