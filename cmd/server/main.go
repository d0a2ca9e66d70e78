package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"voterstore/internal/identity"
	"voterstore/internal/partition/catalog"
	"voterstore/internal/partition/handles"
	partitionhandler "voterstore/internal/partition/handler"
	partitionmetrics "voterstore/internal/partition/metrics"
	"voterstore/internal/partition/provision"
	"voterstore/internal/partition/router"
	"voterstore/internal/partition/store"
	"voterstore/internal/platform/config"
	"voterstore/internal/platform/health"
	"voterstore/internal/platform/httpserver"
	"voterstore/internal/platform/kafka"
	"voterstore/internal/platform/logger"
	platformmetrics "voterstore/internal/platform/metrics"
	"voterstore/internal/platform/middleware"
	"voterstore/internal/platform/postgres"
	platformredis "voterstore/internal/platform/redis"
	synchandler "voterstore/internal/sync/handler"
	syncmetrics "voterstore/internal/sync/metrics"
	syncservice "voterstore/internal/sync/service"
	"voterstore/internal/tenant"
	tenantmetrics "voterstore/internal/tenant/metrics"
	tenantservice "voterstore/internal/tenant/service"
	adminmw "voterstore/pkg/platform/middleware/admin"
	authmw "voterstore/pkg/platform/middleware/auth"
	"voterstore/pkg/platform/middleware/metadata"
	"voterstore/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := prometheus.DefaultRegisterer
	partitionMetrics := partitionmetrics.New(reg)

	partitionStore := store.NewPostgres(db)
	handleCache := handles.New(partitionStore,
		handles.WithLogger(log),
		handles.WithMetrics(partitionMetrics),
	)

	var selectable partitionhandler.Catalog = catalog.New(partitionStore, cfg.Database.Logical,
		catalog.WithLogger(log),
		catalog.WithMetrics(partitionMetrics),
	)
	var invalidator partitionhandler.Invalidator
	if redisClient != nil {
		cached := catalog.NewCached(selectable, redisClient, cfg.Database.Logical, cfg.Redis.CatalogTTL,
			catalog.WithLogger(log),
			catalog.WithMetrics(partitionMetrics),
		)
		selectable, invalidator = cached, cached
	}

	provisionOpts := []provision.Option{
		provision.WithLogger(log),
		provision.WithMetrics(partitionMetrics),
		provision.WithHandleEvictor(handleCache),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := openKafka(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		provisionOpts = append(provisionOpts,
			provision.WithEventPublisher(provision.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic)))
	}
	provisioner := provision.New(partitionStore, cfg.Database.Logical, provisionOpts...)

	partitionRouter := router.New(handleCache, cfg.Database.Logical,
		router.WithDefaultPartition(cfg.Database.DefaultPartition),
		router.WithLogger(log),
		router.WithMetrics(partitionMetrics),
	)
	syncService := syncservice.New(
		syncservice.WithPageLimits(syncservice.PageLimits{
			Min:     cfg.Sync.PageMin,
			Max:     cfg.Sync.PageMax,
			Default: cfg.Sync.PageDefault,
		}),
		syncservice.WithMaxBatch(cfg.Sync.MaxBatch),
		syncservice.WithLogger(log),
		syncservice.WithMetrics(syncmetrics.New(reg)),
	)
	tenantService := tenant.NewService(provisioner,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tenantmetrics.New(reg)),
	)
	identities := identity.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)

	httpMetrics := platformmetrics.New(reg)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log, httpMetrics))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(log, httpMetrics))

	checks := map[string]health.Check{"postgres": partitionStore.Ping}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	r.Get("/healthz", health.Handler(checks, 2*time.Second))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Auth.AdminToken, log))
		partitionhandler.New(selectable, invalidator, log).Register(r)
		tenant.NewHandler(tenantService, log).Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireIdentity(identities, log))
		synchandler.New(partitionRouter, syncService, log).Register(r)
	})

	log.Info("starting voterstore",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Logical,
		"catalog_cache", redisClient != nil,
		"lifecycle_events", len(cfg.Kafka.Brokers) > 0,
	)
	if err := httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	log.Info("shutdown complete")
	handleCache.Clear()
	return nil
}

func openKafka(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	client, err := kafka.New(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafka.EnsureTopic(topicCtx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
