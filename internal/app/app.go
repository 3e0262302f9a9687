// Package app wires the infrastructure adapters into the frame sampling use
// case. The worker and the API binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/config"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/email"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/fetcher"
	miniostorage "github.com/fiapx/fiapx-frame-sampler/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/redis"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
)

type App struct {
	Tables   sampling.Tables
	Sampling sampling.Config
	Topology rabbitmq.Topology
	UseCase  *usecase.SampleFramesUseCase

	pool    *pgxpool.Pool
	rmqConn *amqp.Connection
	pub     *rabbitmq.Publisher
	cache   *redis.ArtifactCache
	logger  *zap.Logger
}

func Topology(cfg *config.Config) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:    cfg.RabbitMQExchange,
		JobQueue:    cfg.RabbitMQJobQueue,
		StatusQueue: cfg.RabbitMQStatusQueue,
		DLQ:         cfg.RabbitMQDLQ,
	}
}

// New connects Postgres, MinIO, RabbitMQ and Redis and builds the use case.
// Redis is optional: without it every job is computed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Topology: Topology(cfg), logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Tables, err = cfg.Tables()
	if err != nil {
		return nil, fmt.Errorf("load phase tables: %w", err)
	}
	a.Sampling, err = cfg.Sampling(a.Tables)
	if err != nil {
		return nil, fmt.Errorf("sampling config: %w", err)
	}

	a.pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err = postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Warn("migration warning", zap.Error(err))
		err = nil
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		FrameBucket:  cfg.MinIOFrameBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio storage: %w", err)
	}
	if err = storage.EnsureBuckets(ctx); err != nil {
		return nil, fmt.Errorf("ensure minio buckets: %w", err)
	}

	var cache port.ArtifactCache
	a.cache, err = redis.NewArtifactCache(ctx, redis.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	}, log)
	if err != nil {
		log.Warn("artifact cache unavailable, continuing without it", zap.Error(err))
		err = nil
	} else {
		cache = a.cache
	}

	a.rmqConn, err = amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq for publisher: %w", err)
	}
	a.pub, err = rabbitmq.NewPublisher(a.rmqConn, cfg.RabbitMQExchange)
	if err != nil {
		return nil, fmt.Errorf("create rabbitmq publisher: %w", err)
	}
	if err = a.pub.Declare(a.Topology); err != nil {
		return nil, fmt.Errorf("declare rabbitmq topology: %w", err)
	}

	sampler := usecase.NewFrameSampler(
		ffmpeg.NewProber(cfg.FFmpegTimeout, log),
		ffmpeg.NewExtractor(cfg.FFmpegFormat, log),
		a.Sampling,
		cfg.ExtractParallel,
		log,
	)

	sources := fetcher.NewRouter(fetcher.NewYtDlp(cfg.YtDlpPath, cfg.YtDlpFormat, log), storage, log,
		fetcher.WithBuckets(cfg.MinIOUploadBucket))

	a.UseCase = usecase.NewSampleFramesUseCase(usecase.Deps{
		Repo:      postgres.NewJobRepository(a.pool),
		Fetcher:   sources,
		Sampler:   sampler,
		Zipper:    ffmpeg.NewZipCreator(),
		Storage:   storage,
		Cache:     cache,
		Publisher: rabbitmq.NewStatusPublisher(a.pub),
		Jobs:      rabbitmq.NewJobPublisher(a.pub),
		DLQ:       rabbitmq.NewDLQPublisher(a.pub, cfg.RabbitMQDLQ),
		Notifier:  email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		Tables:    a.Tables,
	}, log, usecase.SampleFramesConfig{
		TempDir:       cfg.TempDir,
		MaxRetries:    cfg.MaxRetries,
		PresignExpiry: cfg.PresignExpiry,
	})

	log.Info("frame sampler ready",
		zap.String("phase_table", a.Sampling.Table.Version),
		zap.Int("frame_budget", a.Sampling.Budget),
		zap.Bool("cache_enabled", cache != nil),
	)
	return a, nil
}

func (a *App) Close() {
	if a.pub != nil {
		_ = a.pub.Close()
	}
	if a.rmqConn != nil {
		_ = a.rmqConn.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
