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

	"github.com/aposazhennikov/radio-relay/auth"
	"github.com/aposazhennikov/radio-relay/cache"
	"github.com/aposazhennikov/radio-relay/config"
	httpServer "github.com/aposazhennikov/radio-relay/http"
	"github.com/aposazhennikov/radio-relay/logger"
	"github.com/aposazhennikov/radio-relay/objectstore"
	"github.com/aposazhennikov/radio-relay/relay"
	sentryhelper "github.com/aposazhennikov/radio-relay/sentry_helper"
	"github.com/aposazhennikov/radio-relay/store"
)

const (
	release         = "radio-relay@1.0.0"
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 15 * time.Second
)

func main() {
	log := logger.NewLoggerFromEnv()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sentry, err := sentryhelper.Init(cfg.SentryDSN, cfg.Environment, release, log)
	if err != nil {
		log.Warn("Sentry disabled", slog.String("error", err.Error()))
	}
	defer sentry.SafeFlush(2 * time.Second)

	if runErr := run(cfg, log, sentry); runErr != nil {
		log.Error("Server stopped with error", slog.String("error", runErr.Error()))
		sentry.CaptureError(runErr, "main", "run")
		sentry.SafeFlush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, sentry *sentryhelper.SentryHelper) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	db, err := store.Connect(cfg.DBBackend, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(db); closeErr != nil {
			log.Warn("Failed to close database", slog.String("error", closeErr.Error()))
		}
	}()
	if migrateErr := store.Migrate(db); migrateErr != nil {
		return fmt.Errorf("migrate: %w", migrateErr)
	}

	st := store.New(db, log)
	checks := []httpServer.ReadinessCheck{{Name: "database", Check: st.Ping}}

	var podcasts store.Podcasts = st
	if cfg.RedisURL != "" {
		redis, redisErr := cache.New(startCtx, cfg.RedisURL, log)
		if redisErr != nil {
			return redisErr
		}
		defer redis.Close()
		podcasts = store.NewCachedPodcasts(st, redis, log)
		checks = append(checks, httpServer.ReadinessCheck{Name: "redis", Check: redis.Ping})
	}

	objects, err := openObjectStore(startCtx, cfg.Storage)
	if err != nil {
		return err
	}

	if cfg.Stream.SeedFile != "" {
		seeder := store.NewSeeder(cfg.Stream.SeedFile, st, log, sentry)
		if seedErr := seeder.Start(ctx); seedErr != nil {
			return fmt.Errorf("stream config seed: %w", seedErr)
		}
		defer seeder.Close()
	}

	relays := relay.NewManager(relay.Options{
		DefaultURL:         cfg.Stream.DefaultURL,
		ConnectTimeout:     cfg.Stream.ConnectTimeout,
		StallThreshold:     cfg.Stream.StallThreshold,
		StallCheckInterval: cfg.Stream.StallCheckInterval,
	}, log, sentry)
	defer relays.Close()

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, admin endpoints will reject every request")
	}

	server := httpServer.NewServer(httpServer.Config{
		Relay:    relays,
		Objects:  objects,
		Configs:  st,
		Podcasts: podcasts,
		Auth:     auth.NewMiddleware([]byte(cfg.JWTSecret), log),
		Checks:   checks,
		Logger:   log,
		Sentry:   sentry,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server started",
			slog.Int("port", cfg.Port),
			slog.String("db_backend", cfg.DBBackend),
			slog.String("storage_backend", cfg.Storage.Backend))
		if listenErr := httpSrv.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr
		}
		close(serveErr)
	}()

	select {
	case listenErr := <-serveErr:
		if listenErr != nil {
			return fmt.Errorf("listen: %w", listenErr)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Live streams never finish on their own; anything still open after the timeout is dropped.
	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("Graceful shutdown incomplete", slog.String("error", shutdownErr.Error()))
		_ = httpSrv.Close()
	}
	log.Info("Server stopped")
	return nil
}

func openObjectStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	switch cfg.Backend {
	case config.StorageS3:
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case config.StorageLocal:
		return objectstore.NewLocalStore(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownStorageBackend, cfg.Backend)
	}
}
