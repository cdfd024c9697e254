package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/carbonledger/internal/api"
	"example.com/carbonledger/internal/auth"
	"example.com/carbonledger/internal/config"
	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/logging"
	"example.com/carbonledger/internal/outbox"
	"example.com/carbonledger/internal/persistence/memory"
	"example.com/carbonledger/internal/persistence/postgres"
	"example.com/carbonledger/internal/persistence/sqlite"
	httptransport "example.com/carbonledger/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Options{Service: "carbonledger-api"})
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "carbonledger-api"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, pool, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer closeStore()

	var dispatcher *outbox.Dispatcher
	if pool != nil && cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaBatchTimeout)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	} else {
		logger.Info().Str("driver", cfg.StoreDriver).Bool("outbox_enabled", cfg.OutboxEnabled).Msg("outbox dispatcher disabled")
	}

	service := domain.NewService(repo)

	handler := api.NewHandler(service, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(logger, httptransport.CORS(cfg.CORSOrigin, authMiddleware.Wrap(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Str("store", cfg.StoreDriver).Msg("carbonledger api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

// openStore returns the repository selected by STORE_DRIVER. The pool is only
// non-nil for postgres, the one driver that carries an outbox.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (domain.Repository, *pgxpool.Pool, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, err
		}
		applied, err := postgres.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if len(applied) > 0 {
			logger.Info().Strs("migrations", applied).Msg("schema migrated")
		}
		return postgres.NewRepository(pool), pool, pool.Close, nil
	case config.StoreDriverSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, func() { _ = repo.Close() }, nil
	default:
		return memory.NewRepository(), nil, func() {}, nil
	}
}
