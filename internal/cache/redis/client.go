// Package redis caches rendered explanations and evaluations so a
// re-flagged concept does not cost another model call.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db, ttlSec int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttlSec <= 0 {
		ttlSec = 3600
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: time.Duration(ttlSec) * time.Second}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Get satisfies the cache interface used by the explain and notes
// services. A backend error is treated as a miss; the caller just
// regenerates.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return "", false
	}
	if err != nil {
		logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return "", false
	}
	metrics.CacheHits.WithLabelValues("redis").Inc()
	logger.Debug("Cache hit", zap.String("key", key))
	return val, true
}

func (c *Client) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// IncrementCounter bumps a usage counter. Counters survive process
// restarts, unlike the prometheus registry.
func (c *Client) IncrementCounter(ctx context.Context, name string) error {
	return c.client.Incr(ctx, fmt.Sprintf("counter:%s", name)).Err()
}

func (c *Client) GetCounter(ctx context.Context, name string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("counter:%s", name)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
