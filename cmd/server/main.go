// Command server runs the match API: demand posting, rate-limited semantic
// search and payment-gated applications.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/clock"
	"github.com/tbourn/go-match-backend/internal/config"
	"github.com/tbourn/go-match-backend/internal/docs"
	"github.com/tbourn/go-match-backend/internal/embedding"
	"github.com/tbourn/go-match-backend/internal/events"
	httpapi "github.com/tbourn/go-match-backend/internal/http"
	"github.com/tbourn/go-match-backend/internal/observability"
	"github.com/tbourn/go-match-backend/internal/payments"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/repo"
	"github.com/tbourn/go-match-backend/internal/search"
	"github.com/tbourn/go-match-backend/internal/services"
	"github.com/tbourn/go-match-backend/internal/sysutil"
	"github.com/tbourn/go-match-backend/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// @title        Match API
// @version      1.0
// @description  Demand/supply marketplace: rate-limited semantic search and payment-gated applications.
// @BasePath     /api/v1
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	sysutil.SetupLogger(sysutil.LoggerOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
	})

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	clk := clock.System{}

	counters, closeCounters, err := newCounterStore(cfg, clk)
	if err != nil {
		return err
	}
	defer closeCounters()
	limiter := quota.NewDailyLimiter(counters,
		quota.WithClock(clk),
		quota.WithDailyMax(cfg.Search.DailyQuota),
		quota.WithTimeout(cfg.ExternalCallTimeout),
		quota.WithPeekFailOpen(cfg.Search.PeekFailOpen),
	)

	embedder := newEmbedder(cfg)
	index, err := newIndex(ctx, cfg, embedder.Dimension())
	if err != nil {
		return err
	}
	provider := newPaymentProvider(cfg)
	users, closeUsers, err := newUserDirectory(cfg, db)
	if err != nil {
		return err
	}
	defer closeUsers()
	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		DB: db,
		Demands: &services.DemandService{
			DB: db, Index: index, Embedder: embedder, Clock: clk, Users: users,
			CallTimeout: cfg.ExternalCallTimeout,
		},
		Matcher: &services.Matcher{
			DB: db, Index: index, Embedder: embedder, Limiter: limiter, Clock: clk, Users: users,
			TopK: cfg.Search.TopK, CallTimeout: cfg.ExternalCallTimeout,
		},
		Apps: &services.ApplicationGateway{
			DB: db, Payments: provider, Events: publisher, Clock: clk, Users: users,
			CallTimeout: cfg.ExternalCallTimeout,
		},
		Payments: &services.PaymentService{
			DB: db, Payments: provider, Clock: clk, Users: users,
			FeeCents: cfg.Payment.FeeCents, Currency: cfg.Payment.Currency,
			CallTimeout: cfg.ExternalCallTimeout,
		},
		Now: clk.Now,
	}

	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	router := gin.New()
	httpapi.RegisterRoutes(router, deps, cfg)

	sched, err := worker.Start(cfg.MaintenanceSchedule, &worker.Maintenance{DB: db, Index: index, Clock: clk})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("maintenance did not stop in time")
	}
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func newCounterStore(cfg config.Config, clk clock.Clock) (quota.CounterStore, func(), error) {
	switch cfg.Search.CounterStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("quota counters in redis")
		return quota.NewRedisStore(client), func() { _ = client.Close() }, nil
	case "memory", "":
		log.Warn().Msg("quota counters in process memory; not shared across replicas")
		return quota.NewMemoryStore(clk), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown counter store %q", cfg.Search.CounterStore)
	}
}

func newEmbedder(cfg config.Config) embedding.Embedder {
	if cfg.Embedding.Provider == "http" {
		e := cfg.Embedding
		return embedding.NewHTTPEmbedder(e.URL, e.APIKey, e.Model, e.Dimension, e.ResponsePath, cfg.ExternalCallTimeout)
	}
	return embedding.NewHashEmbedder(cfg.Embedding.Dimension)
}

func newIndex(ctx context.Context, cfg config.Config, dim int) (search.Index, error) {
	if cfg.Search.VectorStore != "opensearch" {
		return search.NewMemoryIndex(search.WithDimension(dim)), nil
	}
	client, err := search.NewOpenSearchClient(cfg.OpenSearch)
	if err != nil {
		return nil, fmt.Errorf("opensearch: %w", err)
	}
	idx := search.NewOpenSearchIndex(client, cfg.OpenSearch.Index, dim)
	ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := idx.EnsureIndex(ictx); err != nil {
		return nil, fmt.Errorf("opensearch ensure index: %w", err)
	}
	return idx, nil
}

func newPaymentProvider(cfg config.Config) payments.Provider {
	if cfg.Payment.Provider == "stripe" {
		return payments.NewStripeProvider(cfg.Payment.StripeKey,
			payments.WithBaseURL(cfg.Payment.StripeAPIBase),
			payments.WithHTTPClient(&http.Client{Timeout: cfg.ExternalCallTimeout}),
		)
	}
	log.Warn().Msg("using in-memory payment provider; intents settle immediately")
	p := payments.NewMemoryProvider()
	p.AutoSettle = true
	return p
}

// newUserDirectory returns nil when USER_DIRECTORY=none, which disables the
// existence check.
func newUserDirectory(cfg config.Config, db *gorm.DB) (services.UserDirectory, func(), error) {
	if cfg.Users.Directory != "db" {
		return nil, func() {}, nil
	}
	if cfg.Users.URL == "" {
		log.Info().Str("table", cfg.Users.Table).Msg("user directory on main database")
		return repo.NewUserDirectory(db, cfg.Users.Table), func() {}, nil
	}
	udb, err := repo.Open(config.DatabaseConfig{Driver: "postgres", URL: cfg.Users.URL})
	if err != nil {
		return nil, nil, fmt.Errorf("user directory: %w", err)
	}
	closeFn := func() {}
	if sqlDB, err := udb.DB(); err == nil {
		closeFn = func() { _ = sqlDB.Close() }
	}
	log.Info().Str("table", cfg.Users.Table).Msg("user directory on account database")
	return repo.NewUserDirectory(udb, cfg.Users.Table), closeFn, nil
}

func newPublisher(ctx context.Context, cfg config.Config) (events.Publisher, error) {
	if cfg.Events.Sink != "sqs" {
		return events.Noop{}, nil
	}
	client, err := events.NewSQSClient(ctx, cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("sqs: %w", err)
	}
	return events.NewSQSPublisher(client, cfg.Events.QueueURL), nil
}
