package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/api"
	"github.com/SuPReme-0/ClassLens/internal/attendance"
	"github.com/SuPReme-0/ClassLens/internal/auth"
	"github.com/SuPReme-0/ClassLens/internal/bus"
	"github.com/SuPReme-0/ClassLens/internal/config"
	"github.com/SuPReme-0/ClassLens/internal/httpmiddleware"
	"github.com/SuPReme-0/ClassLens/internal/notify"
	"github.com/SuPReme-0/ClassLens/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupLogging(cfg config.App) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return err
		}
		log.Warn().Err(err).Msg("database not reachable yet")
	}
	defer db.Close()

	if cfg.DBMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
	}

	codec, err := auth.NewCodec(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL)
	if err != nil {
		return err
	}

	checks := []api.HealthCheck{{Name: "db", Check: db.Healthy}}

	var events bus.Bus
	switch cfg.EventBackend {
	case "redis":
		redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		defer redisClient.Close()
		events = bus.NewRedisPubSub(redisClient.Client, cfg.EventChannel)
		checks = append(checks, api.HealthCheck{Name: "redis", Check: redisClient.Healthy})
	default:
		events = bus.NewInMemory(256)
	}
	log.Info().Str("backend", cfg.EventBackend).Msg("event bus configured")

	registry := notify.NewRegistry()
	go func() {
		if err := notify.Relay(ctx, events, registry); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event relay stopped")
			stop()
		}
	}()

	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, codec, notify.NewFanout(events, 2*time.Second), attendance.WithLocation(cfg.Location()))

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go sweepLimiter(ctx, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewServer(cfg, svc, registry, limiter, checks...).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func sweepLimiter(ctx context.Context, l *httpmiddleware.SimpleTokenBucket) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
