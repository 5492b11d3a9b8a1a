package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sharedcfg "github.com/bjpl/inteljobs/internal/config"
	"github.com/bjpl/inteljobs/internal/jobs"
	"github.com/bjpl/inteljobs/internal/monitor"
	"github.com/bjpl/inteljobs/internal/postgres"
	"github.com/bjpl/inteljobs/internal/queue"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
	"github.com/bjpl/inteljobs/internal/registry"
	"github.com/bjpl/inteljobs/pkg/telemetry"
	"github.com/bjpl/inteljobs/services/worker"
	"github.com/bjpl/inteljobs/services/worker/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the worker",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("queue-backend", sharedcfg.BackendKafka, "queue backend: kafka | redis")
	serveCmd.Flags().String("broker-url", "localhost:9092", "broker address (Kafka brokers or Redis host:port)")
	serveCmd.Flags().String("result-backend", "localhost:6379", "Redis address for job state and results")
	serveCmd.Flags().String("queue", "", "queue to consume (empty = default queue)")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN for the execution log; empty disables it")
	serveCmd.Flags().Int("max-retries", 3, "default retry ceiling per job")
	serveCmd.Flags().Duration("retry-delay", time.Second, "base delay before the first retry")
	serveCmd.Flags().Float64("retry-backoff", 2.0, "retry delay multiplier")
	serveCmd.Flags().Duration("default-timeout", 0, "per-attempt execution ceiling; 0 disables it")
	serveCmd.Flags().Bool("monitor-enabled", true, "track executions in the in-memory ledger")
	serveCmd.Flags().Int("retention-days", 7, "ledger retention for terminal jobs")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("queue_backend", serveCmd.Flags(), "queue-backend")
	bindFlag("broker_url", serveCmd.Flags(), "broker-url")
	bindFlag("result_backend", serveCmd.Flags(), "result-backend")
	bindFlag("queue", serveCmd.Flags(), "queue")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("max_retries", serveCmd.Flags(), "max-retries")
	bindFlag("retry_delay", serveCmd.Flags(), "retry-delay")
	bindFlag("retry_backoff", serveCmd.Flags(), "retry-backoff")
	bindFlag("default_timeout", serveCmd.Flags(), "default-timeout")
	bindFlag("monitor_enabled", serveCmd.Flags(), "monitor-enabled")
	bindFlag("retention_days", serveCmd.Flags(), "retention-days")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}

	queueName := cfg.QueueName
	if queueName == "" {
		queueName = cfg.Queue.DefaultQueue
	}
	workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])

	logger := buildLogger(cfg.LogLevel, "worker").With(
		slog.String("worker_id", workerID),
		slog.String("queue", queueName),
	)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "worker", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	redisClient := redisstore.NewClient(cfg.Queue.ResultBackend)
	defer func() { _ = redisClient.Close() }()
	store := redisstore.NewStateStore(redisClient)

	var backend queue.Backend
	switch cfg.Queue.Backend {
	case sharedcfg.BackendKafka:
		backend = queue.NewKafkaBackend(strings.Split(cfg.Queue.BrokerURL, ","), store, logger)
	case sharedcfg.BackendRedis:
		brokerClient := redisstore.NewClient(cfg.Queue.BrokerURL)
		defer func() { _ = brokerClient.Close() }()
		backend = queue.NewRedisBackend(brokerClient, store, logger)
	}
	defer func() { _ = backend.Close() }()

	reg := registry.New()
	deps := jobs.Deps{HTTPClient: &http.Client{Timeout: 30 * time.Second}}

	var repo postgres.ExecutionRepository
	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)
		deps.Pool = pool
	}

	jobs.RegisterAll(reg, deps, cfg.JobOptions()...)

	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithQueue(queueName),
	}
	if repo != nil {
		opts = append(opts, worker.WithRepository(repo))
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var health telemetry.HealthFunc
	if cfg.Monitor.Enabled {
		mon := monitor.New(
			monitor.WithRetention(time.Duration(cfg.Monitor.RetentionDays)*24*time.Hour),
			monitor.WithLogger(logger),
		)
		mon.StartCleanupLoop(time.Duration(cfg.Monitor.MetricsInterval)*time.Second, runCtx.Done())
		opts = append(opts, worker.WithMonitor(mon))
		health = func() (any, bool) {
			h := mon.HealthStatus()
			return h, h.Healthy()
		}
	}

	w := worker.NewWorker(workerID, backend, store, reg, opts...)

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, health, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, draining in-flight jobs...")
		runCancel()
	}()

	logger.Info("worker starting",
		slog.String("backend", cfg.Queue.Backend),
		slog.Int("max_retries", cfg.Retry.MaxRetries),
		slog.String("job_types", strings.Join(reg.Types(), ",")),
	)

	if err := w.Run(runCtx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	w.Wait()
	logger.Info("stopped cleanly")
	return nil
}
