package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/kafka"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
)

// KafkaBackend enqueues envelopes through a Kafka topic per queue. State and
// results live in the Redis state store: the broker itself carries only the
// envelope. Cancellation marks the job CANCELLED so workers skip it — the
// broker entry cannot be withdrawn.
type KafkaBackend struct {
	brokers  []string
	producer kafka.Producer
	store    redisstore.StateStore
	logger   *slog.Logger

	mu        sync.Mutex
	consumers []kafka.Consumer
}

// NewKafkaBackend creates a broker-based backend.
func NewKafkaBackend(brokers []string, store redisstore.StateStore, logger *slog.Logger) *KafkaBackend {
	return &KafkaBackend{
		brokers:  brokers,
		producer: kafka.NewProducer(brokers),
		store:    store,
		logger:   logger,
	}
}

func kafkaTopic(queue string) string { return "jobs." + queue }

func (b *KafkaBackend) Enqueue(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.producer.Publish(ctx, kafkaTopic(env.Queue), env.JobID, data); err != nil {
		return err
	}
	if err := b.store.SetState(ctx, env.JobID, domain.StatePending); err != nil {
		return err
	}
	// Backlog counter, best-effort.
	if err := b.store.IncrPending(ctx, env.Queue); err != nil {
		b.logger.Error("pending counter incr failed",
			slog.String("queue", env.Queue),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (b *KafkaBackend) Consume(ctx context.Context, queue string, fn ConsumeFunc) error {
	consumer := kafka.NewConsumer(b.brokers, kafkaTopic(queue), "jobs-workers-"+queue, b.logger)
	b.mu.Lock()
	b.consumers = append(b.consumers, consumer)
	b.mu.Unlock()

	return consumer.Subscribe(ctx, func(msgCtx context.Context, msg kafka.Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// A malformed envelope would be re-delivered forever; drop it.
			b.logger.Error("malformed envelope, discarding",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if err := b.store.DecrPending(msgCtx, queue); err != nil {
			b.logger.Error("pending counter decr failed",
				slog.String("queue", queue),
				slog.String("error", err.Error()),
			)
		}
		return fn(msgCtx, &env)
	})
}

func (b *KafkaBackend) Status(ctx context.Context, jobID string) (domain.State, error) {
	return b.store.GetState(ctx, jobID)
}

func (b *KafkaBackend) Result(ctx context.Context, jobID string) (*domain.Result, error) {
	return b.store.GetResult(ctx, jobID)
}

func (b *KafkaBackend) Cancel(ctx context.Context, jobID string) (bool, error) {
	state, err := b.store.GetState(ctx, jobID)
	if err != nil {
		return false, err
	}
	if state.IsTerminal() || state == domain.StateRunning {
		return false, nil
	}
	if err := b.store.SetState(ctx, jobID, domain.StateCancelled); err != nil {
		return false, err
	}
	return true, nil
}

func (b *KafkaBackend) Length(ctx context.Context, queue string) (int64, error) {
	return b.store.PendingLen(ctx, queue)
}

func (b *KafkaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.producer.Close()
	for _, c := range b.consumers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
