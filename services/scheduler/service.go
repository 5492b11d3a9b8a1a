package scheduler

import (
	"context"
	"log/slog"
	"time"

	jobsched "github.com/bjpl/inteljobs/internal/scheduler"
)

// Service wraps the schedule loop with leader election: the loop runs only
// while this instance holds leadership and stops as soon as it is lost.
type Service struct {
	sched        *jobsched.Scheduler
	leader       Leader
	pollInterval time.Duration
	logger       *slog.Logger

	isLeader bool
}

// NewService composes a scheduler with a Leader. pollInterval controls how
// often leadership is re-checked; keep it well under the leader TTL.
func NewService(sched *jobsched.Scheduler, leader Leader, pollInterval time.Duration, logger *slog.Logger) *Service {
	if pollInterval <= 0 {
		pollInterval = leaderTTL / 3
	}
	return &Service{
		sched:        sched,
		leader:       leader,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, starting and stopping the schedule loop
// as leadership comes and goes.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.transition(ctx)
	for {
		select {
		case <-ctx.Done():
			if s.isLeader {
				s.sched.Stop()
			}
			return
		case <-ticker.C:
			s.transition(ctx)
		}
	}
}

func (s *Service) transition(ctx context.Context) {
	leading := s.leader.AcquireOrRenew(ctx)
	switch {
	case leading && !s.isLeader:
		s.logger.Info("leadership gained, starting schedule loop")
		s.sched.Start()
		s.isLeader = true
	case !leading && s.isLeader:
		s.logger.Warn("leadership lost, stopping schedule loop")
		s.sched.Stop()
		s.isLeader = false
	}
}
