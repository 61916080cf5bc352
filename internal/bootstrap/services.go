// Package bootstrap assembles the stores, queue, pipeline driver and job
// tracker shared by the API server and the standalone worker.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"scenegen/internal/adapter/queue"
	"scenegen/internal/adapter/repo"
	"scenegen/internal/domain"
	"scenegen/internal/infra"
	"scenegen/internal/infra/credentials"
	"scenegen/internal/jobs"
	"scenegen/internal/pipeline"
	"scenegen/internal/providers/xai"
	"scenegen/internal/storage"
)

type Services struct {
	Images  *storage.FileStore
	Uploads *storage.FileStore
	Driver  *pipeline.Driver
	Store   domain.JobStore
	Queue   domain.JobQueue
	Tracker *jobs.Tracker

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Build wires every long-lived dependency from cfg. Callers must Close the
// result.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Services, error) {
	s := &Services{}
	var err error

	if s.Images, err = storage.NewFileStore(cfg.OutputDir); err != nil {
		return nil, err
	}
	if s.Uploads, err = storage.NewFileStore(cfg.UploadDir); err != nil {
		return nil, err
	}

	var sql infra.SQLExecutor
	if cfg.DatabaseURL != "" {
		if s.pool, err = infra.NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		sql = infra.NewSQLRunner(s.pool, logger.With().Str("component", "sql").Logger())
	}

	apiKey, err := resolveAPIKey(ctx, cfg, sql, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	factory := xai.NewFactory(xai.Options{
		APIKey:        apiKey,
		BaseURL:       cfg.XAIBaseURL,
		ChatModel:     cfg.ChatModel,
		ImageModel:    cfg.ImageModel,
		Timeout:       cfg.HTTPClientTimeout,
		RatePerMinute: cfg.ImageRatePerMinute,
		Logger:        &logger,
	})
	s.Driver, err = pipeline.NewDriver(pipeline.Options{
		Clients:     factory,
		Store:       s.Images,
		Template:    cfg.PromptTemplate,
		ImageFormat: cfg.ImageFormat,
		MaxAttempts: cfg.ImageRetry,
		BackoffUnit: cfg.BackoffUnit,
		ScenePause:  cfg.ScenePause,
		Logger:      &logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	switch cfg.JobStore {
	case infra.JobStorePostgres:
		pg := repo.NewJobRepository(sql)
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ensure job schema: %w", err)
		}
		s.Store = pg
	default:
		s.Store = repo.NewMemoryJobStore(0)
	}

	switch cfg.JobQueue {
	case infra.JobQueueRedis:
		if s.redis, err = infra.NewRedisClient(ctx, cfg); err != nil {
			s.Close()
			return nil, err
		}
		s.Queue = queue.NewRedisQueue(s.redis, cfg.JobQueueName)
	default:
		s.Queue = queue.NewMemoryQueue(0)
	}

	s.Tracker, err = jobs.NewTracker(jobs.Options{
		Store:   s.Store,
		Queue:   s.Queue,
		Runner:  s.Driver,
		Workers: cfg.WorkerCount,
		Logger:  logger.With().Str("component", "jobs").Logger(),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// resolveAPIKey prefers XAI_API_KEY and falls back to the credentials
// table. An empty result is allowed; requests may carry their own key.
func resolveAPIKey(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger infra.Logger) (string, error) {
	if key := strings.TrimSpace(cfg.XAIAPIKey); key != "" {
		return key, nil
	}
	if sql == nil {
		logger.Warn().Msg("no default xai api key; requests must supply api_key")
		return "", nil
	}
	store := credentials.NewStore(sql)
	if err := store.EnsureSchema(ctx); err != nil {
		return "", fmt.Errorf("ensure credentials schema: %w", err)
	}
	key, err := store.XAIAPIKey(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load xai api key from store")
		return "", nil
	}
	if key == "" {
		logger.Warn().Msg("no default xai api key; requests must supply api_key")
	}
	return key, nil
}

func (s *Services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
