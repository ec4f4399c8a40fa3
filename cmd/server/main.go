package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"talentflow/internal/auth"
	"talentflow/internal/auth/revocation"
	candidatehandler "talentflow/internal/candidate/handler"
	candidatemetrics "talentflow/internal/candidate/metrics"
	candidateservice "talentflow/internal/candidate/service"
	"talentflow/internal/eventbus"
	"talentflow/internal/eventbus/ingest"
	kafkabus "talentflow/internal/eventbus/kafka"
	"talentflow/internal/eventbus/memory"
	busmetrics "talentflow/internal/eventbus/metrics"
	"talentflow/internal/eventbus/outbox"
	"talentflow/internal/events"
	httpapi "talentflow/internal/http"
	jwttoken "talentflow/internal/jwt_token"
	"talentflow/internal/notification/builder"
	notificationhandler "talentflow/internal/notification/handler"
	notificationmetrics "talentflow/internal/notification/metrics"
	notificationservice "talentflow/internal/notification/service"
	"talentflow/internal/platform/config"
	"talentflow/internal/platform/httpserver"
	platformkafka "talentflow/internal/platform/kafka"
	"talentflow/internal/platform/logger"
	platformmetrics "talentflow/internal/platform/metrics"
	platformredis "talentflow/internal/platform/redis"
	"talentflow/internal/realtime"
	realtimemetrics "talentflow/internal/realtime/metrics"
	"talentflow/internal/realtime/relay"
	"talentflow/internal/realtime/ws"
	"talentflow/pkg/platform/circuit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("talentflow stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("talentflow stopped")
}

// run wires every component and blocks until ctx is cancelled or one of the
// background loops fails.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	health := map[string]httpapi.HealthCheck{}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.db != nil {
		health["postgres"] = st.db.PingContext
	}
	if cfg.Server.SeedDemoData {
		if err := seedDemo(ctx, st, time.Now().UTC()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		health["redis"] = rdb.Health
	}

	var trl auth.RevocationChecker = revocation.NewInMemoryTRL(nil)
	if rdb != nil {
		trl = revocation.NewRedisTRL(rdb.Client)
	}
	authn := auth.NewAuthenticator(
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
		trl,
		log,
	)

	candidates := candidateservice.New(st.tx, st.candidates, st.history,
		candidateservice.WithLogger(log),
		candidateservice.WithMetrics(candidatemetrics.New(reg)),
	)
	notifications := notificationservice.New(st.notifications, notificationservice.WithLogger(log))

	rtMetrics := realtimemetrics.New(reg)
	sessions := realtime.NewRegistry(notifications,
		realtime.WithLogger(log),
		realtime.WithMetrics(rtMetrics),
		realtime.WithBacklogLimit(cfg.Realtime.BacklogLimit),
	)

	var deliverer builder.Deliverer = sessions
	if rdb != nil {
		deliverer = relay.NewPublisher(rdb.Client, sessions,
			relay.WithLogger(log),
			relay.WithMetrics(rtMetrics),
			relay.WithBreaker(circuit.New("realtime-relay", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2))),
		)
	}
	notifier := builder.New(st.notifications, st.directory, deliverer,
		builder.WithLogger(log),
		builder.WithMetrics(notificationmetrics.New(reg)),
	)

	router := eventbus.NewRouter(log, nil)
	router.Register(notifier, events.Types()...)

	g, gctx := errgroup.WithContext(ctx)

	bm := busmetrics.New(reg)
	policy := eventbus.RetryPolicy{
		Initial:        cfg.Bus.RetryInitial,
		Max:            cfg.Bus.RetryMax,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
	}
	bus, err := startBus(gctx, g, cfg, log, router, bm, policy)
	if err != nil {
		return err
	}

	relayLoop := outbox.NewRelay(st.outbox, bus,
		outbox.WithInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithLogger(log),
		outbox.WithPublishHook(bm.AddRelayed),
	)
	g.Go(func() error { return relayLoop.Run(gctx) })
	g.Go(func() error { return sessions.Run(gctx, cfg.Realtime.SweepInterval, cfg.Realtime.PongWait) })
	if rdb != nil {
		sub := relay.NewSubscriber(rdb.Client, sessions, log)
		g.Go(func() error { return sub.Run(gctx) })
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Authenticator:  authn,
		InternalToken:  cfg.Server.InternalToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        platformmetrics.New(reg),
		Gatherer:       reg,
		Health:         health,
		Candidates:     candidatehandler.New(candidates, log),
		Notifications:  notificationhandler.New(notifications, log),
		Realtime: ws.New(authn, sessions, ws.Config{
			QueueCapacity:  cfg.Realtime.QueueCapacity,
			PingPeriod:     cfg.Realtime.PingPeriod,
			PongWait:       cfg.Realtime.PongWait,
			WriteWait:      cfg.Realtime.WriteWait,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
		}, log, ws.WithMetrics(rtMetrics)),
		Ingest: ingest.New(st.outbox, log),
	})

	srv := httpserver.New(cfg.Server.Addr, handler)
	g.Go(func() error {
		log.Info("starting talentflow", "addr", cfg.Server.Addr,
			"postgres", st.db != nil, "redis", rdb != nil, "kafka", cfg.Kafka.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startBus selects Kafka when brokers are configured and the partitioned
// in-memory bus otherwise. Consumers are started on g.
func startBus(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger,
	handler eventbus.Handler, m *busmetrics.Metrics, policy eventbus.RetryPolicy,
) (eventbus.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		bus := memory.New(handler, cfg.Bus.Partitions, cfg.Bus.QueueSize,
			memory.WithLogger(log),
			memory.WithMetrics(m),
			memory.WithRetryPolicy(policy),
		)
		g.Go(func() error { return bus.Run(ctx) })
		return bus, nil
	}

	producer, err := platformkafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if err := platformkafka.EnsureTopic(ctx, producer, cfg.Kafka); err != nil {
		producer.Close()
		return nil, fmt.Errorf("kafka topic: %w", err)
	}
	// the hooks only fire from polls, which start after consumer is set
	var consumer *kafkabus.Consumer
	revoked := func(ctx context.Context, cl *kgo.Client, tps map[string][]int32) {
		consumer.Revoked(ctx, cl, tps)
	}
	consumerClient, err := platformkafka.NewConsumer(cfg.Kafka,
		kgo.OnPartitionsRevoked(revoked),
		kgo.OnPartitionsLost(revoked),
	)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer = kafkabus.NewConsumer(consumerClient, handler,
		kafkabus.WithLogger(log),
		kafkabus.WithMetrics(m),
		kafkabus.WithRetryPolicy(policy),
	)
	g.Go(func() error {
		defer producer.Close()
		defer consumerClient.Close()
		return consumer.Run(ctx)
	})
	return kafkabus.NewPublisher(producer, m), nil
}
