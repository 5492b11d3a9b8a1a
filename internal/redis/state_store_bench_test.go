package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bjpl/inteljobs/internal/domain"
)

// newBenchClient returns a Redis client connected to localhost:6379.
// Benchmarks are skipped if Redis is not reachable.
func newBenchClient(b *testing.B) *redis.Client {
	b.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:         "localhost:6379",
		DialTimeout:  1 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := c.Ping(context.Background()).Err(); err != nil {
		b.Skipf("Redis not available at localhost:6379: %v", err)
	}
	b.Cleanup(func() { _ = c.Close() })
	return c
}

// BenchmarkStateStore_SetState measures a single SET with TTL.
func BenchmarkStateStore_SetState(b *testing.B) {
	store := NewStateStore(newBenchClient(b))
	ctx := context.Background()
	const jobID = "bench-job-set"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.SetState(ctx, jobID, domain.StateRunning); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateStore_SetResult measures marshalling plus SET for a
// representative terminal result.
func BenchmarkStateStore_SetResult(b *testing.B) {
	store := NewStateStore(newBenchClient(b))
	ctx := context.Background()

	res := &domain.Result{
		JobID:    "bench-job-result",
		JobType:  "api_ingestion",
		Status:   domain.StateCompleted,
		Data:     map[string]any{"records": 512, "pages": 4},
		Duration: 1200 * time.Millisecond,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.SetResult(ctx, res); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateStore_GetState_Parallel stresses concurrent status polling,
// the hot path of WaitForResult.
func BenchmarkStateStore_GetState_Parallel(b *testing.B) {
	client := newBenchClient(b)
	store := NewStateStore(client)
	ctx := context.Background()
	const jobID = "bench-job-parallel"

	if err := store.SetState(ctx, jobID, domain.StateCompleted); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := store.GetState(ctx, jobID); err != nil {
				b.Fatal(err)
			}
		}
	})
}
