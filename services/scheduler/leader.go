package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leaderKey = "jobs:scheduler:leader"
	leaderTTL = 30 * time.Second
)

// Leader decides whether this instance may fire schedules. Running more than
// one scheduler replica without it would double-enqueue every due schedule.
type Leader interface {
	AcquireOrRenew(ctx context.Context) bool
}

// redisLeader elects a leader with SETNX plus an owner-checked renewal.
type redisLeader struct {
	client     *redis.Client
	instanceID string
	logger     *slog.Logger
}

// NewRedisLeader creates a Leader backed by the given Redis client.
func NewRedisLeader(client *redis.Client, instanceID string, logger *slog.Logger) Leader {
	return &redisLeader{client: client, instanceID: instanceID, logger: logger}
}

// AcquireOrRenew attempts SETNX; returns true if this instance is the leader.
func (l *redisLeader) AcquireOrRenew(ctx context.Context) bool {
	ok, err := l.client.SetNX(ctx, leaderKey, l.instanceID, leaderTTL).Result()
	if err != nil {
		l.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		l.logger.Info("acquired scheduler leadership", slog.String("instance_id", l.instanceID))
		return true
	}

	// Already set — renew only if we own it (atomic Lua script avoids races).
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, l.client,
		[]string{leaderKey},
		l.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Error("leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}

// alwaysLeader is for single-instance deployments with no Redis reachable
// from the scheduler.
type alwaysLeader struct{}

func (alwaysLeader) AcquireOrRenew(context.Context) bool { return true }

// NewStandaloneLeader returns a Leader that always holds leadership.
func NewStandaloneLeader() Leader { return alwaysLeader{} }
