// Package market defines the candle and order-book types shared by the
// indicator pipeline, execution model and simulation loop.
package market

import (
	"fmt"
	"time"
)

// Candle is a single OHLCV bar. Immutable once produced; series are ordered
// ascending by timestamp with one series per symbol.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // ms since epoch, bar open time
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Series is a time-ordered candle slice for one symbol.
type Series []Candle

// Validate checks ascending timestamp order.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp <= s[i-1].Timestamp {
			return fmt.Errorf("candle %d out of order: %d <= %d", i, s[i].Timestamp, s[i-1].Timestamp)
		}
	}
	return nil
}

// Cadence returns the most common delta between consecutive bars in ms,
// sampling at most the first 2000 bars. Returns fallback if undetectable.
func (s Series) Cadence(fallback int64) int64 {
	if len(s) < 2 {
		return fallback
	}
	deltaCount := make(map[int64]int)
	limit := len(s)
	if limit > 2000 {
		limit = 2000
	}
	for i := 1; i < limit; i++ {
		d := s[i].Timestamp - s[i-1].Timestamp
		if d > 0 && d < int64(60*60*1000) {
			deltaCount[d]++
		}
	}
	best := fallback
	bestCount := 0
	for d, c := range deltaCount {
		if c > bestCount {
			bestCount = c
			best = d
		}
	}
	return best
}
