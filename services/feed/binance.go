// Package feed supplies live candles for paper trading. The Binance feed
// polls the spot klines endpoint once per closed bar and hands completed
// candles to a consumer; it is intentionally REST-only so the paper trader
// has no websocket lifecycle to babysit.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketsim/services/market"
)

// BinanceFeed polls spot klines for a set of symbols.
type BinanceFeed struct {
	client  *binance.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewBinance builds a public-data feed. Keys are optional; kline endpoints
// do not require authentication.
func NewBinance(apiKey, secret string, logger *zap.Logger) *BinanceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceFeed{
		client: binance.NewClient(apiKey, secret),
		// Spot REST weight budget is generous; 5 req/s keeps polling for a
		// handful of symbols far under it.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:  logger,
	}
}

// History fetches the most recent closed klines for warmup.
func (f *BinanceFeed) History(ctx context.Context, symbol, interval string, limit int) (market.Series, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: klines %s %s: %w", symbol, interval, err)
	}

	series := make(market.Series, 0, len(klines))
	for _, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			return nil, fmt.Errorf("feed: parse kline %s: %w", symbol, err)
		}
		series = append(series, c)
	}
	// The last kline is usually the still-open bar.
	if n := len(series); n > 0 {
		closeTime := series[n-1].Timestamp + intervalMs(interval) - 1
		if closeTime >= time.Now().UnixMilli() {
			series = series[:n-1]
		}
	}
	return series, nil
}

// Event is one closed candle for one symbol.
type Event struct {
	Symbol string
	Candle market.Candle
}

// Stream polls every interval tick and sends each newly closed candle. Runs
// until ctx is cancelled; the channel is closed on return.
func (f *BinanceFeed) Stream(ctx context.Context, symbols []string, interval string, out chan<- Event) error {
	defer close(out)

	step := time.Duration(intervalMs(interval)) * time.Millisecond
	lastSeen := make(map[string]int64, len(symbols))

	ticker := time.NewTicker(step / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, sym := range symbols {
			series, err := f.History(ctx, sym, interval, 3)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Warn("kline poll failed", zap.String("symbol", sym), zap.Error(err))
				continue
			}
			for _, c := range series {
				if c.Timestamp <= lastSeen[sym] {
					continue
				}
				lastSeen[sym] = c.Timestamp
				select {
				case out <- Event{Symbol: sym, Candle: c}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func candleFromKline(k *binance.Kline) (market.Candle, error) {
	var c market.Candle
	var err error
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return c, err
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return c, err
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return c, err
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return c, err
	}
	if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
		return c, err
	}
	c.Timestamp = k.OpenTime
	return c, nil
}

func intervalMs(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	case "1d":
		return 86_400_000
	default:
		return 300_000
	}
}
