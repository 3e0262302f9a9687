package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

const keyPrefix = "fiapx:frames:artifact:"

type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ArtifactCache stores finished-job artifacts as JSON under a TTL.
type ArtifactCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewArtifactCache(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (*ArtifactCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return &ArtifactCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (c *ArtifactCache) Close() error {
	return c.client.Close()
}

func (c *ArtifactCache) Get(ctx context.Context, key string) (*port.CachedArtifact, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var artifact port.CachedArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		// Unreadable entries count as misses.
		c.logger.Warn("dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, keyPrefix+key).Err()
		return nil, port.ErrCacheMiss
	}
	return &artifact, nil
}

func (c *ArtifactCache) Put(ctx context.Context, key string, artifact *port.CachedArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *ArtifactCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
