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

	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	auditobserver "mintledger/internal/audit"
	"mintledger/internal/factory"
	"mintledger/internal/item"
	jwttoken "mintledger/internal/jwt_token"
	minthandler "mintledger/internal/mint/handler"
	mintmetrics "mintledger/internal/mint/metrics"
	"mintledger/internal/mint/service"
	"mintledger/internal/platform/config"
	"mintledger/internal/platform/httpserver"
	"mintledger/internal/platform/kafka"
	kafkaconsumer "mintledger/internal/platform/kafka/consumer"
	"mintledger/internal/platform/logger"
	platformmetrics "mintledger/internal/platform/metrics"
	"mintledger/internal/platform/postgres"
	redisclient "mintledger/internal/platform/redis"
	"mintledger/internal/ratelimit"
	ratelimitmetrics "mintledger/internal/ratelimit/metrics"
	ratelimitmw "mintledger/internal/ratelimit/middleware"
	"mintledger/internal/ratelimit/models"
	"mintledger/internal/runtime"
	runtimemetrics "mintledger/internal/runtime/metrics"
	ledgermemory "mintledger/internal/runtime/store/memory"
	ledgerpostgres "mintledger/internal/runtime/store/postgres"
	ledgerredis "mintledger/internal/runtime/store/redis"
	httptransport "mintledger/internal/transport/http"
	audit "mintledger/pkg/platform/audit"
	auditconsumer "mintledger/pkg/platform/audit/consumer"
	"mintledger/pkg/platform/audit/publisher"
	"mintledger/pkg/platform/audit/publishers/stream"
	auditmemory "mintledger/pkg/platform/audit/store/memory"
	auditpostgres "mintledger/pkg/platform/audit/store/postgres"
	"mintledger/pkg/platform/circuit"
)

const (
	version          = "dev"
	auditQueueSize   = 1024
	rateLimitIdleTTL = 10 * time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	ledger runtime.Store
	audit  audit.Store
	health map[string]httptransport.HealthCheck
	close  []func()
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := platformmetrics.New(version, cfg.Store.Driver)

	backends, err := openStores(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(backends.close) - 1; i >= 0; i-- {
			backends.close[i]()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	auditStore := backends.audit
	if cfg.Kafka.StreamEnabled() {
		streamStore, consumer, err := openAuditStream(gctx, cfg, backends, m, log)
		if err != nil {
			return err
		}
		auditStore = streamStore
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	audits := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditQueueSize),
		publisher.WithLogger(log),
	)
	defer audits.Close()

	fee, factoryReserve, itemReserve, tolerance := cfg.Ledger.Amounts()
	rt := runtime.New(backends.ledger,
		runtime.WithLogger(log),
		runtime.WithMetrics(runtimemetrics.NewWith(m.Registry)),
		runtime.WithProcessingFee(fee),
		runtime.WithMaxCascade(cfg.Ledger.MaxCascade),
		runtime.WithObserver(auditobserver.NewObserver(audits, log)),
		runtime.WithContract(factory.New(factory.Config{
			Reserve:               factoryReserve,
			ItemReserve:           itemReserve,
			RefundConfigureExcess: cfg.Ledger.RefundExcess,
		})),
		runtime.WithContract(item.New(itemReserve)),
	)
	recovered, err := rt.Recover(ctx)
	if err != nil {
		return fmt.Errorf("deliver pending messages: %w", err)
	}
	if len(recovered) > 0 {
		log.Info("delivered pending messages", "transactions", len(recovered))
	}

	svc := service.New(rt,
		service.WithLogger(log),
		service.WithAuditPublisher(audits),
		service.WithMetrics(mintmetrics.NewWith(m.Registry)),
		service.WithTolerance(tolerance),
		service.WithFaucet(cfg.Server.FaucetEnabled),
	)

	limits := models.DefaultLimits()
	limits[models.ClassRead] = models.Limit{RPS: cfg.RateLimit.ReadRPS, Burst: cfg.RateLimit.ReadBurst}
	limits[models.ClassWrite] = models.Limit{RPS: cfg.RateLimit.WriteRPS, Burst: cfg.RateLimit.WriteBurst}
	limiter := ratelimit.New(limits, rateLimitIdleTTL)

	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:    log,
		Mint:      minthandler.New(svc, audits, log),
		Validator: jwttoken.NewJWTServiceAdapter(jwt),
		RateLimit: ratelimitmw.New(limiter, log,
			ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
			ratelimitmw.WithAuditPublisher(audits),
			ratelimitmw.WithMetrics(ratelimitmetrics.NewWith(m.Registry)),
		),
		Audit:         audits,
		AdminToken:    cfg.Server.AdminToken,
		FaucetEnabled: cfg.Server.FaucetEnabled,
		Gatherer:      m.Registry,
		Health:        backends.health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("starting mintledger",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Driver,
			"audit_stream", cfg.Kafka.StreamEnabled(),
			"faucet", cfg.Server.FaucetEnabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Config, m *platformmetrics.Metrics, log *slog.Logger) (*infra, error) {
	out := &infra{health: map[string]httptransport.HealthCheck{}}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		out.close = append(out.close, pool.Close)
		ledger := ledgerpostgres.New(pool)
		if err := ledger.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		audits := auditpostgres.New(pool)
		if err := audits.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		out.ledger, out.audit = ledger, audits
		out.health["postgres"] = trackHealth(m, "postgres", ledger.Health)
	case config.DriverRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		out.close = append(out.close, func() { _ = client.Close() })
		out.ledger = ledgerredis.New(client.Client)
		out.audit = auditmemory.NewInMemoryStore()
		out.health["redis"] = trackHealth(m, "redis", client.Health)
	default:
		out.ledger = ledgermemory.New()
		out.audit = auditmemory.NewInMemoryStore()
	}
	log.Info("ledger store ready", "driver", cfg.Store.Driver)
	return out, nil
}

// openAuditStream routes audit events through Kafka. The materialized store
// is both the fallback of the stream and the sink of the consumer.
func openAuditStream(ctx context.Context, cfg config.Config, backends *infra, m *platformmetrics.Metrics, log *slog.Logger) (audit.Store, *kafkaconsumer.Consumer, error) {
	kcfg := kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.AuditTopic,
		ClientID: "mintledger",
	}
	producer, err := kafka.NewProducer(kcfg)
	if err != nil {
		return nil, nil, err
	}
	backends.close = append(backends.close, producer.Close)
	if err := kafka.EnsureTopic(ctx, producer, kcfg); err != nil {
		return nil, nil, err
	}
	backends.health["kafka"] = trackHealth(m, "kafka", func(ctx context.Context) error {
		return kafka.Ping(ctx, producer)
	})

	streamStore := stream.New(producer, cfg.Kafka.AuditTopic, backends.audit,
		stream.WithBreaker(circuit.New("audit-stream")),
		stream.WithSampler(stream.NewSampler(cfg.Kafka.SampleRate)),
		stream.WithMetrics(stream.NewMetrics(m.Registry)),
		stream.WithLogger(log),
	)

	consumerClient, err := kafka.NewConsumer(kcfg, cfg.Kafka.ConsumerGroup, kgo.ClientID("mintledger-audit"))
	if err != nil {
		return nil, nil, err
	}
	backends.close = append(backends.close, consumerClient.Close)

	sink := auditconsumer.NewStoreHandler(backends.audit, log)
	router := auditconsumer.NewRouter(log, sink)
	router.Register(audit.CategorySecurity, auditconsumer.NewSecurityAlertHandler(sink, log))
	return streamStore, kafkaconsumer.New(consumerClient, router, log), nil
}

func trackHealth(m *platformmetrics.Metrics, name string, check httptransport.HealthCheck) httptransport.HealthCheck {
	return func(ctx context.Context) error {
		err := check(ctx)
		m.SetStoreUp(name, err == nil)
		return err
	}
}
