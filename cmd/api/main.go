package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/config"
	"recipe-extraction-service/internal/repository/postgresql"
	"recipe-extraction-service/internal/service"
	httptransport "recipe-extraction-service/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		lg := zerolog.New(os.Stderr)
		lg.Fatal().Err(err).Msg("config")
	}

	log := newLogger(cfg.LogLevel).With().Str("service", "extraction-api").Logger()

	pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis")
	}

	low, normal, high := service.Lanes(cfg.QueueKey, cfg.ProcessingKey)
	queue := service.NewRedisExtractionQueue(rdb, cfg.ProcessingKey+":map", low, normal, high)

	jobRepo := postgresql.NewJobRepository(pool)
	platformRepo := postgresql.NewPlatformRepository(pool)
	costRepo := postgresql.NewCostRepository(pool)

	jobs := service.NewExtractionService(jobRepo, queue, log)
	tracker := service.NewPlatformTracker(platformRepo, service.TrackerConfig{
		FailureThreshold:  cfg.FailureThreshold,
		PersistentReasons: cfg.PersistentReasons,
	}, log)
	ledger := service.NewCostLedger(costRepo, jobRepo)

	handler := httptransport.NewHandler(jobs, tracker, ledger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.Routes(handler, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("api started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("api stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
