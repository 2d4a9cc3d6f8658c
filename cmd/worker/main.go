package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/adapters/aiservice"
	"recipe-extraction-service/internal/config"
	"recipe-extraction-service/internal/repository/postgresql"
	"recipe-extraction-service/internal/service"
	"recipe-extraction-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		lg := zerolog.New(os.Stderr)
		lg.Fatal().Err(err).Msg("config")
	}

	log := newLogger(cfg.LogLevel).With().Str("service", "extraction-worker").Logger()

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

	// Reaper: pushes claimed-but-unacked jobs back onto their queue lane
	// after a worker crash or restart.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := queue.RequeueStale(ctx, 100)
				if err != nil {
					log.Error().Err(err).Msg("requeue error")
					continue
				}
				if n > 0 {
					log.Info().Int64("requeued", n).Msg("requeued stale claims")
				}
			}
		}
	}()

	jobRepo := postgresql.NewJobRepository(pool)
	platformRepo := postgresql.NewPlatformRepository(pool)
	costRepo := postgresql.NewCostRepository(pool)
	recipeRepo := postgresql.NewRecipeRepository(pool)

	tracker := service.NewPlatformTracker(platformRepo, service.TrackerConfig{
		FailureThreshold:  cfg.FailureThreshold,
		PersistentReasons: cfg.PersistentReasons,
	}, log)
	ledger := service.NewCostLedger(costRepo, jobRepo)
	dedup := service.NewDuplicateDetector(recipeRepo)
	gateway := aiservice.NewClient(cfg.AIServiceURL, cfg.AIServiceToken)

	processor := worker.NewProcessor(jobRepo, recipeRepo, dedup, tracker, ledger, gateway, log)
	processor.SetCompletionHook(func(ctx context.Context, jobID, recipeID uuid.UUID) {
		// Side data (slug and friends) is generated by the collaborator
		// store; the hook just logs the causal link here.
		log.Info().
			Str("job_id", jobID.String()).
			Str("recipe_id", recipeID.String()).
			Msg("recipe committed")
	})

	pw := worker.NewPool(queue, processor, cfg.Workers, log)
	pw.Run(ctx)

	log.Info().Msg("worker stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
