// Command clinicflow runs the appointment workflow engine: command consumers,
// the delayed job worker, dead-letter consumers and the HTTP surface for
// realtime push, health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/config"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/health"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/core/server"
	"github.com/clinicflow/clinicflow/integration/database/pg"
	redisdb "github.com/clinicflow/clinicflow/integration/database/redis"
	pgqueue "github.com/clinicflow/clinicflow/integration/queue/postgres"
	pgstore "github.com/clinicflow/clinicflow/integration/store/postgres"
	"github.com/clinicflow/clinicflow/pkg/metrics"
	"github.com/clinicflow/clinicflow/pkg/ratelimiter"
	"github.com/clinicflow/clinicflow/pkg/realtime"
)

func main() {
	var cfg Config
	config.MustLoad(&cfg)

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("clinicflow stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("clinicflow stopped")
}

func newLogger(cfg Config) *slog.Logger {
	env := logger.WithProduction(cfg.ServiceName)
	if cfg.Development() {
		env = logger.WithDevelopment(cfg.ServiceName)
	}
	return logger.New(env, logger.WithContextExtractors(logger.TraceIDExtractor))
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, log, pgstore.Migrations(), pgqueue.Migrations()); err != nil {
		return err
	}

	checks := []health.Check{pg.Healthcheck(pool)}

	var rdb *redis.Client
	if cfg.Broker == BrokerRedis || cfg.NotificationCache == BackendRedis {
		var rcfg redisdb.Config
		if err := config.Load(&rcfg); err != nil {
			return err
		}
		if rdb, err = redisdb.Connect(ctx, rcfg); err != nil {
			return err
		}
		defer rdb.Close()
		checks = append(checks, redisdb.Healthcheck(rdb))
	}

	reg := metrics.New(cfg.ServiceName, metrics.WithRuntimeCollectors())

	b, partition, err := newBroker(cfg, rdb, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil && !errors.Is(err, broker.ErrBrokerClosed) {
			log.Error("failed to close broker", logger.Error(err))
		}
	}()

	sender, err := newEmailSender(cfg, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	escOpts := []escalation.Option{escalation.WithLogger(log.With(logger.Component("escalation")))}
	if cfg.AlertThrottleEnabled {
		store := ratelimiter.NewMemoryStore(ratelimiter.WithMemoryStoreLogger(log))
		limiter, err := ratelimiter.NewBucket(store, cfg.AlertThrottle)
		if err != nil {
			return fmt.Errorf("alert throttle: %w", err)
		}
		escOpts = append(escOpts, escalation.WithThrottle(limiter))
		g.Go(store.Run(ctx))
	}
	escalator := escalation.New(sender, cfg.AdminEmail, escOpts...)

	storage, err := newQueueStorage(cfg, pool, log)
	if err != nil {
		return err
	}
	queueSvc, err := queue.NewServiceFromConfig(cfg.Queue, storage,
		[]queue.WorkerOption{
			queue.WithDeadLetterPublisher(b),
			queue.WithAlerter(escalator),
			queue.WithWorkerLogger(log.With(logger.Component("queue"))),
		},
		queue.WithServiceLogger(log),
	)
	if err != nil {
		return err
	}
	checks = append(checks, queueSvc.Healthcheck)

	hub := realtime.NewHub(
		realtime.WithShards(cfg.RealtimeShards),
		realtime.WithLogger(log.With(logger.Component("realtime"))),
	)
	defer hub.Close()

	cache, err := newNotificationCache(cfg, rdb)
	if err != nil {
		return err
	}

	pipeline, err := notification.NewPipeline(queueSvc, pgstore.NewNotifications(pool),
		notification.WithMaxAttempts(cfg.NotificationMaxAttempts),
		notification.WithBackoffBase(cfg.NotificationBackoff),
		notification.WithSink(hub),
		notification.WithCache(cache),
		notification.WithDirectory(pgstore.NewUsers(pool)),
		notification.WithMailer(sender),
		notification.WithAlerter(escalator),
		notification.WithLogger(log.With(logger.Component("notification"))),
	)
	if err != nil {
		return err
	}

	router := command.NewRouter(b,
		command.WithMaxRetries(cfg.CommandMaxRetries),
		command.WithNotifier(pipeline),
		command.WithAlerter(escalator),
		command.WithPartitionByEntity(partition),
		command.WithMiddleware(command.LoggingMiddleware(log)),
		command.WithLogger(log.With(logger.Component("command"))),
	)

	appointments, err := appointment.NewService(pgstore.NewAppointments(pool), router, pipeline, queueSvc,
		appointment.WithJobMaxAttempts(cfg.AppointmentJobMaxAttempts),
		appointment.WithJobBackoffBase(cfg.AppointmentJobBackoff),
		appointment.WithAlerter(escalator),
		appointment.WithLogger(log.With(logger.Component("appointment"))),
	)
	if err != nil {
		return err
	}
	appointments.Register(router)

	if err := queueSvc.RegisterHandlers(pipeline.TaskHandler(), appointments.TaskHandler()); err != nil {
		return err
	}

	registerMetrics(reg, router, queueSvc, pipeline, appointments, escalator, hub)

	srv, err := server.NewFromConfig(cfg.Server, server.WithLogger(log.With(logger.Component("http"))))
	if err != nil {
		return err
	}

	topic := appointments.Topic()
	subscribe(ctx, g, b, topic, router.Consume(topic))
	subscribe(ctx, g, b, command.DeadLetterTopic(topic), router.ConsumeDeadLetters(topic))
	subscribe(ctx, g, b, notification.DeadLetterTopic, pipeline.DeadLetterHandler())
	subscribe(ctx, g, b, appointment.JobDeadLetterTopic, appointments.DeadLetterHandler())

	g.Go(func() error { return queueSvc.Run(ctx) })
	g.Go(srv.Run(ctx, routes(log, hub, reg, checks, appointments, pipeline)))

	log.InfoContext(ctx, "clinicflow started",
		slog.String("broker", cfg.Broker),
		slog.String("queue_backend", cfg.QueueBackend),
		slog.String("email", cfg.EmailProvider))

	return g.Wait()
}

func subscribe(ctx context.Context, g *errgroup.Group, b broker.Subscriber, topic string, h broker.Handler) {
	g.Go(func() error {
		if err := b.Subscribe(ctx, topic, h); err != nil && ctx.Err() == nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		return nil
	})
}
