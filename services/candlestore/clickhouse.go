// Package candlestore loads candle history for simulations. The primary
// source is a ClickHouse klines table; a Redis read-through cache sits in
// front so repeated runs over the same window skip the database entirely.
package candlestore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"marketsim/services/market"
)

// Config for the ClickHouse-backed store. Zero values are filled from env
// by ConfigFromEnv; explicit fields win.
type Config struct {
	Addr     string        `yaml:"addr"`
	Database string        `yaml:"database"`
	Table    string        `yaml:"table"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ConfigFromEnv reads connection settings from the environment with the
// same variable names the ingestion tooling uses.
func ConfigFromEnv() Config {
	return Config{
		Addr:     envOr("CH_ADDR", "localhost:9000"),
		Database: envOr("CH_DATABASE", "backtest"),
		Table:    envOr("CH_TABLE", "data"),
		User:     envOr("CH_USER", "backtest"),
		Password: envOr("CH_PASSWORD", "backtest123"),
		CacheTTL: 15 * time.Minute,
	}
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// Store reads candle series from ClickHouse, with optional caching.
type Store struct {
	conn   clickhouse.Conn
	cache  *Cache
	cfg    Config
	logger *zap.Logger
	retry  failsafe.Executor[market.Series]
}

// Open connects to ClickHouse and verifies the connection. cache may be nil.
func Open(ctx context.Context, cfg Config, cache *Cache, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("candlestore: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("candlestore: clickhouse ping: %w", err)
	}

	retry := retrypolicy.NewBuilder[market.Series]().
		HandleIf(func(_ market.Series, err error) bool { return err != nil }).
		WithBackoff(200*time.Millisecond, 3*time.Second).
		WithMaxRetries(3).
		Build()

	return &Store{
		conn:   conn,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		retry:  failsafe.With[market.Series](retry),
	}, nil
}

// Close releases the ClickHouse connection.
func (s *Store) Close() error { return s.conn.Close() }

// Load returns the candle series for symbol/interval over [from, to] open
// times (epoch ms), ascending and deduplicated. Cache hits bypass ClickHouse;
// transient query failures are retried with backoff.
func (s *Store) Load(ctx context.Context, symbol, interval string, from, to int64) (market.Series, error) {
	if s.cache != nil {
		if series, ok := s.cache.GetCandles(ctx, symbol, interval, from, to); ok {
			s.logger.Debug("candle cache hit",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Int("count", len(series)))
			return series, nil
		}
	}

	series, err := s.retry.GetWithExecution(func(_ failsafe.Execution[market.Series]) (market.Series, error) {
		return s.query(ctx, symbol, interval, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("candlestore: query %s %s: %w", symbol, interval, err)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("candlestore: %s %s: %w", symbol, interval, err)
	}

	if s.cache != nil && len(series) > 0 {
		if err := s.cache.SetCandles(ctx, symbol, interval, from, to, series, s.cfg.CacheTTL); err != nil {
			// Cache writes are best effort.
			s.logger.Warn("candle cache write failed", zap.Error(err))
		}
	}

	s.logger.Info("loaded candles",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(series)))
	return series, nil
}

// LoadLastDays is a convenience wrapper for "the trailing N days ending now".
func (s *Store) LoadLastDays(ctx context.Context, symbol, interval string, days int) (market.Series, error) {
	to := time.Now().UTC().UnixMilli()
	from := to - int64(days)*24*60*60*1000
	return s.Load(ctx, symbol, interval, from, to)
}

// query reads from the ReplacingMergeTree table. FINAL collapses duplicate
// versions so re-ingested months never produce duplicate bars.
func (s *Store) query(ctx context.Context, symbol, interval string, from, to int64) (market.Series, error) {
	q := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms BETWEEN ? AND ?
		ORDER BY open_time_ms
	`, s.cfg.Database, s.cfg.Table)

	rows, err := s.conn.Query(ctx, q, symbol, interval, uint64(from), uint64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series market.Series
	for rows.Next() {
		var openTime uint64
		var c market.Candle
		if err := rows.Scan(&openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Timestamp = int64(openTime)
		series = append(series, c)
	}
	return series, rows.Err()
}
