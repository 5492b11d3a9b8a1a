package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/job"
)

func TestNewSchedule_RejectsMultipleTriggerKinds(t *testing.T) {
	_, err := NewSchedule("double", nil, func(s *Schedule) {
		s.CronExpr = "* * * * *"
		s.Interval = time.Minute
	})
	require.Error(t, err)
}

func TestNewSchedule_RejectsBadCron(t *testing.T) {
	_, err := NewSchedule("double", nil, func(s *Schedule) {
		s.CronExpr = "not a cron"
	})
	require.Error(t, err)
}

func TestNewSchedule_RejectsBadAtTime(t *testing.T) {
	_, err := NewSchedule("double", nil, func(s *Schedule) {
		s.AtTime = "25:99"
	})
	require.Error(t, err)
}

func TestInterval_DueImmediatelyThenAfterInterval(t *testing.T) {
	s, err := NewSchedule("double", job.Params{"value": 5}, func(s *Schedule) {
		s.Interval = time.Second
	})
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, s.ShouldRun(now), "interval schedule with no prior run fires immediately")

	require.NoError(t, s.MarkRun(now))
	assert.False(t, s.ShouldRun(now), "not due again until the interval elapses")
	assert.True(t, s.ShouldRun(now.Add(time.Second)))
	assert.Equal(t, 1, s.RunCount)
	assert.Equal(t, now, s.LastRun)
}

func TestAtTime_TodayOrTomorrow(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	s := &Schedule{JobName: "report", AtTime: "14:00", Enabled: true}
	next, err := s.nextRunAfter(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), next, "still in the future today")

	s2 := &Schedule{JobName: "report", AtTime: "08:00", Enabled: true}
	next, err = s2.nextRunAfter(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), next, "already past, tomorrow")
}

func TestCron_NextStrictlyAfterNow(t *testing.T) {
	s := &Schedule{JobName: "ingest", CronExpr: "0 * * * *", Enabled: true}
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	next, err := s.nextRunAfter(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), next)
}

func TestCron_ParseFailureFallsBackOneHour(t *testing.T) {
	// A bad expression can only arrive by mutating the field after
	// construction; evaluation still degrades instead of wedging.
	s := &Schedule{JobName: "ingest", CronExpr: "garbage", Enabled: true}
	now := time.Now()

	next, err := s.nextRunAfter(now)
	require.Error(t, err)
	assert.Equal(t, now.Add(time.Hour), next)
}

func TestOneShot_FiresOnceThenDisables(t *testing.T) {
	s, err := NewSchedule("double", nil, nil)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, s.ShouldRun(now), "one-shot is due immediately")

	require.NoError(t, s.MarkRun(now))
	assert.False(t, s.Enabled, "one-shot auto-disables after the first fire")
	assert.False(t, s.ShouldRun(now.Add(time.Hour)))
}

func TestDisabled_NeverDue(t *testing.T) {
	s, err := NewSchedule("double", nil, func(s *Schedule) {
		s.Interval = time.Millisecond
		s.Enabled = false
	})
	require.NoError(t, err)
	assert.False(t, s.ShouldRun(time.Now().Add(time.Hour)))
}
