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
	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/jobs"
	"github.com/bjpl/inteljobs/internal/postgres"
	"github.com/bjpl/inteljobs/internal/queue"
	redisstore "github.com/bjpl/inteljobs/internal/redis"
	"github.com/bjpl/inteljobs/internal/registry"
	jobsched "github.com/bjpl/inteljobs/internal/scheduler"
	"github.com/bjpl/inteljobs/pkg/telemetry"
	schedsvc "github.com/bjpl/inteljobs/services/scheduler"
	"github.com/bjpl/inteljobs/services/scheduler/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("queue-backend", sharedcfg.BackendKafka, "queue backend: kafka | redis")
	serveCmd.Flags().String("broker-url", "localhost:9092", "broker address (Kafka brokers or Redis host:port)")
	serveCmd.Flags().String("result-backend", "localhost:6379", "Redis address for job state and results")
	serveCmd.Flags().Duration("scheduler-check-interval", time.Second, "how often schedules are checked for due triggers")
	serveCmd.Flags().Bool("standalone", false, "skip leader election (single-instance deployments)")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN; enables the database ingestion job type")
	serveCmd.Flags().Int("rate-limit", 0, "max enqueues per job type per window; 0 disables limiting")
	serveCmd.Flags().Duration("rate-window", time.Minute, "sliding window for the enqueue rate limit")
	serveCmd.Flags().String("metrics-addr", ":9093", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("queue_backend", serveCmd.Flags(), "queue-backend")
	bindFlag("broker_url", serveCmd.Flags(), "broker-url")
	bindFlag("result_backend", serveCmd.Flags(), "result-backend")
	bindFlag("scheduler_check_interval", serveCmd.Flags(), "scheduler-check-interval")
	bindFlag("standalone", serveCmd.Flags(), "standalone")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_window", serveCmd.Flags(), "rate-window")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled by config (scheduler_enabled=false)")
	}

	instanceID := "scheduler-" + uuid.New().String()[:8]
	logger := buildLogger(cfg.LogLevel, "scheduler").With(slog.String("instance_id", instanceID))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "scheduler", cfg.OTelEndpoint)
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

	managerOpts := []queue.ManagerOption{
		queue.WithDefaultQueue(cfg.Queue.DefaultQueue),
		queue.WithDefaultPriority(cfg.Queue.DefaultPriority),
		queue.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		managerOpts = append(managerOpts,
			queue.WithRateLimiter(redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)))
		logger.Info("enqueue rate limiting enabled",
			slog.Int("limit", cfg.RateLimit),
			slog.Duration("window", cfg.RateWindow),
		)
	}
	manager := queue.NewManager(backend, managerOpts...)

	reg := registry.New()
	deps := jobs.Deps{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		deps.Pool = pool
	}
	jobs.RegisterAll(reg, deps, cfg.JobOptions()...)

	sched := jobsched.New(reg, manager,
		jobsched.WithCheckInterval(cfg.Scheduler.CheckInterval),
		jobsched.WithLogger(logger),
	)
	if err := addSchedules(sched, cfg.Schedules, logger); err != nil {
		return err
	}

	leader := schedsvc.NewStandaloneLeader()
	if !cfg.Standalone {
		leader = schedsvc.NewRedisLeader(redisClient, instanceID, logger)
	}
	svc := schedsvc.NewService(sched, leader, 0, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, nil, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("scheduler starting",
		slog.Int("schedules", len(cfg.Schedules)),
		slog.Duration("check_interval", cfg.Scheduler.CheckInterval),
		slog.Bool("standalone", cfg.Standalone),
	)
	svc.Run(runCtx)
	logger.Info("stopped")
	return nil
}

// addSchedules converts config specs into live schedules. A bad spec is a
// startup error: silently dropping a schedule hides a misconfigured trigger.
func addSchedules(sched *jobsched.Scheduler, specs []config.ScheduleSpec, logger *slog.Logger) error {
	for _, spec := range specs {
		s, err := jobsched.NewSchedule(spec.Job, job.Params(spec.Params), func(sc *jobsched.Schedule) {
			sc.Queue = spec.Queue
			sc.CronExpr = spec.Cron
			sc.Interval = spec.Interval
			sc.AtTime = spec.AtTime
			sc.Enabled = !spec.Disabled
		})
		if err != nil {
			return fmt.Errorf("schedule %q: %w", spec.Name, err)
		}
		sched.Add(s)
		logger.Info("schedule registered",
			slog.String("name", spec.Name),
			slog.String("job", spec.Job),
			slog.String("schedule_id", s.ID),
		)
	}
	return nil
}
