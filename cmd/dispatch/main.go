package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-dispatch/internal/config"
	"github.com/telhawk-systems/telhawk-dispatch/internal/handlers"
	"github.com/telhawk-systems/telhawk-dispatch/internal/logging"
	"github.com/telhawk-systems/telhawk-dispatch/internal/natsio"
	"github.com/telhawk-systems/telhawk-dispatch/internal/server"
	"github.com/telhawk-systems/telhawk-dispatch/internal/stream"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/repository"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/store"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	ctx := context.Background()

	// Endpoint registrations live in Postgres when enabled, memory otherwise.
	var repo repository.Repository
	if cfg.Database.Enabled {
		connString := cfg.Database.Postgres.DSN()

		logger.Info("running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		pg, err := repository.NewPostgresRepository(ctx, connString)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		repo = pg
	} else {
		repo = repository.NewMemoryRepository()
	}
	defer repo.Close()

	// Delivery records live in Redis when enabled, memory otherwise. Both
	// expire terminal records after the configured TTL.
	var deliveries store.Store
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid Redis URL: %v", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		deliveries = store.NewRedisStore(client, cfg.Redis.TTL)
	} else {
		deliveries = store.NewMemoryStore(cfg.Redis.TTL)
	}
	defer deliveries.Close()

	// Webhook registry and delivery engine
	registry := webhook.NewRegistry(repo, deliveries)
	engineCfg := webhook.EngineConfig{
		DrainInterval:     cfg.Webhook.DrainInterval,
		RetryScanInterval: cfg.Webhook.RetryScanInterval,
		DrainBatchSize:    cfg.Webhook.DrainBatchSize,
		QueueCapacity:     cfg.Webhook.QueueCapacity,
		UserAgent:         cfg.Webhook.UserAgent,
	}
	transport := webhook.NewHTTPTransport(cfg.Webhook.HTTPTimeout)
	engine := webhook.NewEngine(engineCfg, registry, deliveries, transport, logger)

	// NATS connects the router's output to consumer channel subjects and
	// feeds inbound events into both distribution paths.
	var natsClient *natsio.Client
	var publisher *natsio.Publisher
	if cfg.NATS.Enabled {
		natsCfg := natsio.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait

		natsClient, err = natsio.NewClient(natsCfg, logger)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
		publisher = natsio.NewPublisher(natsClient)
	}

	// Stream router with relevance scoring and windowed aggregation
	scorerCfg := stream.DefaultRelevanceConfig()
	scorerCfg.SeverityWeight = cfg.Stream.SeverityWeight
	scorerCfg.TypeAffinityExact = cfg.Stream.TypeMatchWeight
	scorerCfg.TypeAffinityOther = cfg.Stream.TypeMismatchWeight
	scorerCfg.Baseline = cfg.Stream.BaseWeight
	scorer := stream.NewRelevanceScorer(scorerCfg, nil)

	var sink stream.Sink
	if publisher != nil {
		sink = publisher
	}

	router := stream.NewRouter(scorer, nil, logger)
	aggregator := stream.NewAggregator(sink, cfg.Stream.MaxWindowBuffer, router.RecordAggregated, logger)
	router.SetAggregator(aggregator)
	defer aggregator.Close()

	throttleCfg := stream.ThrottleConfig{
		DefaultRate:        cfg.Stream.ThrottleDefaultRate,
		HeavyLatencyMs:     cfg.Stream.ThrottleHeavyLatencyMs,
		ModerateLatencyMs:  cfg.Stream.ThrottleModerateLatencyMs,
		LightThroughputEps: cfg.Stream.ThrottleLightThroughputEps,
	}
	advisor := stream.NewThrottleAdvisor(router, throttleCfg)

	// Start the delivery engine ticks
	go engine.Start(ctx)
	defer engine.Stop()

	// Subscribe to inbound event subjects
	if natsClient != nil {
		subscriber := natsio.NewSubscriber(natsClient, router, publisher, engine, logger)
		if err := subscriber.Start(); err != nil {
			log.Fatalf("Failed to subscribe to NATS: %v", err)
		}
	}

	// Initialize handlers
	handler := handlers.NewHandler(router, advisor, registry, engine)
	if natsClient != nil {
		handler = handler.WithReadyCheck(natsClient.IsConnected)
	}

	// Setup HTTP router
	mux := server.NewRouter(handler, cfg.Auth.JWTSecret)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("dispatch service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped gracefully")
}
