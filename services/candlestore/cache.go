package candlestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"marketsim/services/market"
)

const cachePrefix = "marketsim:"

// Cache is a Redis-backed read-through cache for candle windows. A miss or
// any Redis error is treated as a miss; the store falls back to ClickHouse.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCache connects to Redis. Returns an error only if the server is
// unreachable at startup so a misconfigured address fails fast.
func NewCache(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("candlestore: redis ping: %w", err)
	}
	return &Cache{client: client, logger: logger}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

func candleKey(symbol, interval string, from, to int64) string {
	return fmt.Sprintf("%scandles:%s:%s:%d:%d", cachePrefix, symbol, interval, from, to)
}

// GetCandles returns the cached series for an exact window, if present.
func (c *Cache) GetCandles(ctx context.Context, symbol, interval string, from, to int64) (market.Series, bool) {
	data, err := c.client.Get(ctx, candleKey(symbol, interval, from, to)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.Error(err))
		}
		return nil, false
	}
	var series market.Series
	if err := json.Unmarshal([]byte(data), &series); err != nil {
		c.logger.Warn("cached candles corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return series, true
}

// SetCandles stores a series under its exact window key with a TTL.
func (c *Cache) SetCandles(ctx context.Context, symbol, interval string, from, to int64, series market.Series, ttl time.Duration) error {
	data, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, candleKey(symbol, interval, from, to), data, ttl).Err()
}
