// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the report store. KeyPrefix and ReportTTL come straight
// from config so callers need not convert units.
type RedisClient struct {
	Client    *redis.Client
	KeyPrefix string
	ReportTTL time.Duration
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	c := &RedisClient{
		Client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
		KeyPrefix: cfg.KeyPrefix,
		ReportTTL: time.Duration(cfg.ReportTTL) * time.Second,
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Client.Close()
		return nil, err
	}
	return c, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return apperrors.NewStoreUnavailableError("redis", err)
	}
	return nil
}

func (c *RedisClient) Close() error { return c.Client.Close() }
