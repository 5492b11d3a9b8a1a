package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bjpl/inteljobs/internal/domain"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
)

const (
	popTimeout = time.Second
	payloadTTL = 24 * time.Hour
)

func listKey(queue string) string    { return "jobs:queue:" + queue }
func payloadKey(jobID string) string { return "jobs:payload:" + jobID }

// dlqKey holds envelopes that could not be decoded.
const dlqKey = "jobs:dlq"

// RedisBackend enqueues envelopes onto a FIFO Redis list per queue. A
// payload mirror keyed by job ID makes cancellation an LREM of the exact
// serialized entry.
type RedisBackend struct {
	client *redis.Client
	store  redisstore.StateStore
	logger *slog.Logger
}

// NewRedisBackend creates a list-queue backend on the given client.
func NewRedisBackend(client *redis.Client, store redisstore.StateStore, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{client: client, store: store, logger: logger}
}

func (b *RedisBackend) Enqueue(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.LPush(ctx, listKey(env.Queue), data).Err(); err != nil {
		return fmt.Errorf("redis lpush to %s: %w", env.Queue, err)
	}
	if err := b.client.Set(ctx, payloadKey(env.JobID), data, payloadTTL).Err(); err != nil {
		return fmt.Errorf("redis payload mirror for %s: %w", env.JobID, err)
	}
	return b.store.SetState(ctx, env.JobID, domain.StatePending)
}

// Consume pops envelopes with BRPOP until ctx is cancelled. Each pop is
// bounded so shutdown is observed within popTimeout.
func (b *RedisBackend) Consume(ctx context.Context, queue string, fn ConsumeFunc) error {
	key := listKey(queue)
	for {
		if ctx.Err() != nil {
			return nil
		}

		vals, err := b.client.BRPop(ctx, popTimeout, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // idle timeout, poll again
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redis brpop from %s: %w", queue, err)
		}

		raw := vals[1]
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// Corrupt entries go to the DLQ list so workers don't loop on them.
			b.logger.Error("malformed envelope, moving to DLQ",
				slog.String("queue", queue),
				slog.String("error", err.Error()),
			)
			_ = b.client.LPush(ctx, dlqKey, raw).Err()
			continue
		}

		_ = b.client.Del(ctx, payloadKey(env.JobID)).Err()
		if err := fn(ctx, &env); err != nil {
			b.logger.Error("envelope handler failed",
				slog.String("job_id", env.JobID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (b *RedisBackend) Status(ctx context.Context, jobID string) (domain.State, error) {
	return b.store.GetState(ctx, jobID)
}

func (b *RedisBackend) Result(ctx context.Context, jobID string) (*domain.Result, error) {
	return b.store.GetResult(ctx, jobID)
}

// Cancel removes the queued entry when it is still on the list and marks the
// job CANCELLED. Work a worker already popped is not interrupted.
func (b *RedisBackend) Cancel(ctx context.Context, jobID string) (bool, error) {
	state, err := b.store.GetState(ctx, jobID)
	if err != nil {
		return false, err
	}
	if state.IsTerminal() || state == domain.StateRunning {
		return false, nil
	}

	raw, err := b.client.Get(ctx, payloadKey(jobID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis payload lookup for %s: %w", jobID, err)
	}
	if err == nil {
		var env Envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil {
			_ = b.client.LRem(ctx, listKey(env.Queue), 1, raw).Err()
		}
		_ = b.client.Del(ctx, payloadKey(jobID)).Err()
	}

	if err := b.store.SetState(ctx, jobID, domain.StateCancelled); err != nil {
		return false, err
	}
	return true, nil
}

func (b *RedisBackend) Length(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, listKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen for %s: %w", queue, err)
	}
	return n, nil
}

func (b *RedisBackend) Close() error {
	return nil // client lifetime is owned by the caller
}
