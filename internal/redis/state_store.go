package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bjpl/inteljobs/internal/domain"
)

const (
	stateTTL  = 24 * time.Hour
	resultTTL = 24 * time.Hour
)

func stateKey(jobID string) string   { return "jobs:state:" + jobID }
func resultKey(jobID string) string  { return "jobs:result:" + jobID }
func pendingKey(queue string) string { return "jobs:pending:" + queue }

// StateStore keeps real-time job state and terminal results in Redis. Both
// queue backends share it: the Kafka broker has no per-task status API of
// its own, and the list backend needs results to outlive the popped entry.
type StateStore interface {
	SetState(ctx context.Context, jobID string, state domain.State) error
	GetState(ctx context.Context, jobID string) (domain.State, error)
	SetResult(ctx context.Context, res *domain.Result) error
	GetResult(ctx context.Context, jobID string) (*domain.Result, error)
	IncrPending(ctx context.Context, queue string) error
	DecrPending(ctx context.Context, queue string) error
	PendingLen(ctx context.Context, queue string) (int64, error)
}

type stateStore struct {
	client *redis.Client
}

// NewStateStore creates a Redis-backed StateStore.
func NewStateStore(client *redis.Client) StateStore {
	return &stateStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *stateStore) SetState(ctx context.Context, jobID string, state domain.State) error {
	if err := s.client.Set(ctx, stateKey(jobID), string(state), stateTTL).Err(); err != nil {
		return fmt.Errorf("redis set state for %s: %w", jobID, err)
	}
	return nil
}

func (s *stateStore) GetState(ctx context.Context, jobID string) (domain.State, error) {
	val, err := s.client.Get(ctx, stateKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.JobNotFoundError{JobID: jobID}
		}
		return "", fmt.Errorf("redis get state for %s: %w", jobID, err)
	}
	return domain.State(val), nil
}

func (s *stateStore) SetResult(ctx context.Context, res *domain.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(res.JobID), data, resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set result for %s: %w", res.JobID, err)
	}
	return nil
}

func (s *stateStore) GetResult(ctx context.Context, jobID string) (*domain.Result, error) {
	data, err := s.client.Get(ctx, resultKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.JobNotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("redis get result for %s: %w", jobID, err)
	}
	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

// Pending counters track broker backlog per queue; Kafka cannot answer
// queue-length queries itself.

func (s *stateStore) IncrPending(ctx context.Context, queue string) error {
	if err := s.client.Incr(ctx, pendingKey(queue)).Err(); err != nil {
		return fmt.Errorf("redis incr pending for %s: %w", queue, err)
	}
	return nil
}

func (s *stateStore) DecrPending(ctx context.Context, queue string) error {
	if err := s.client.Decr(ctx, pendingKey(queue)).Err(); err != nil {
		return fmt.Errorf("redis decr pending for %s: %w", queue, err)
	}
	return nil
}

func (s *stateStore) PendingLen(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.Get(ctx, pendingKey(queue)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis pending length for %s: %w", queue, err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
