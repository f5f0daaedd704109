package market

import "fmt"

// Resample aggregates a series into a coarser cadence. Bars are bucketed by
// floor(timestamp/target), so buckets align to the epoch the way exchange
// klines do. Partial trailing buckets are kept. target must be a positive
// multiple of the source cadence.
func Resample(series Series, sourceMs, targetMs int64) (Series, error) {
	if sourceMs <= 0 || targetMs <= 0 {
		return nil, fmt.Errorf("resample: cadences must be positive")
	}
	if targetMs%sourceMs != 0 {
		return nil, fmt.Errorf("resample: target %dms is not a multiple of source %dms", targetMs, sourceMs)
	}
	if targetMs == sourceMs || len(series) == 0 {
		return series, nil
	}

	var out Series
	var cur Candle
	var curBucket int64 = -1

	for _, c := range series {
		bucket := c.Timestamp / targetMs
		if bucket != curBucket {
			if curBucket >= 0 {
				out = append(out, cur)
			}
			curBucket = bucket
			cur = Candle{
				Timestamp: bucket * targetMs,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if curBucket >= 0 {
		out = append(out, cur)
	}
	return out, nil
}
