package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"scenegen/internal/bootstrap"
	"scenegen/internal/infra"
)

// The standalone worker drains the shared Redis queue and records progress
// in Postgres, so the API can run with WORKER_MODE=external.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "worker").Logger()

	if cfg.JobQueue != infra.JobQueueRedis || cfg.JobStore != infra.JobStorePostgres {
		logger.Fatal().
			Str("job_queue", cfg.JobQueue).
			Str("job_store", cfg.JobStore).
			Msg("worker: requires JOB_QUEUE=redis and JOB_STORE=postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build services")
	}
	defer svc.Close()

	logger.Info().Int("workers", cfg.WorkerCount).Str("queue", cfg.JobQueueName).Msg("worker started")
	if err := svc.Tracker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker stopped")
}
