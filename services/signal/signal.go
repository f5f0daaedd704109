// Package signal scores indicator values at a single candle index into a
// BUY/SELL/HOLD decision with confidence and human-readable reasons.
package signal

import (
	"math"

	"marketsim/services/indicators"
	"marketsim/services/market"
)

// Action is the signal decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision thresholds. These constants are load-bearing: regression fixtures
// replay against them, so they must not drift.
const (
	rsiStrongLow   = 30
	rsiStrongHigh  = 70
	rsiWeakLow     = 45
	rsiWeakHigh    = 55
	percentBLow    = 0.1
	percentBHigh   = 0.9
	stochLow       = 20
	stochHigh      = 80
	netThreshold   = 3
	minConfidence  = 0.5
	volumeVetoRate = 0.7
)

// Snapshot captures the indicator values the decision was made from.
type Snapshot struct {
	RSI      float64               `json:"rsi"`
	EMAFast  float64               `json:"ema20"`
	EMASlow  float64               `json:"ema50"`
	MACD     indicators.MACDPoint  `json:"macd"`
	BB       indicators.BBPoint    `json:"bb"`
	Stoch    indicators.StochPoint `json:"stoch"`
	ADX      float64               `json:"adx"`
	VolumeMA float64               `json:"volume_ma"`
	Close    float64               `json:"close"`
	Volume   float64               `json:"volume"`
}

// Signal is a scored trading decision for one (symbol, index).
type Signal struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"` // [0,1]
	Reasons    []string `json:"reasons"`
	Snapshot   Snapshot `json:"snapshot"`
	Timestamp  int64    `json:"timestamp"`
}

// Generate scores the indicator values at index. Bullish and bearish scores
// accumulate independently; confidence is |bull-bear|/(bull+bear). A BUY
// needs net >= +3 with confidence >= 0.5, a SELL net <= -3 with the same
// confidence floor. A current volume below 0.7x its moving average vetoes
// any action regardless of score.
func Generate(candles market.Series, set *indicators.Set, index int) Signal {
	c := candles[index]
	snap := Snapshot{
		RSI:      set.RSI[index],
		EMAFast:  set.EMAFast[index],
		EMASlow:  set.EMASlow[index],
		MACD:     set.MACD[index],
		BB:       set.BB[index],
		Stoch:    set.Stoch[index],
		ADX:      set.ADX[index],
		VolumeMA: set.VolumeMA[index],
		Close:    c.Close,
		Volume:   c.Volume,
	}

	var bullish, bearish int
	var reasons []string

	// RSI thresholds: strong at 30/70, weak lean at 45/55
	switch {
	case snap.RSI < rsiStrongLow:
		bullish += 2
		reasons = append(reasons, "RSI oversold")
	case snap.RSI > rsiStrongHigh:
		bearish += 2
		reasons = append(reasons, "RSI overbought")
	case snap.RSI < rsiWeakLow:
		bullish++
		reasons = append(reasons, "RSI leaning bullish")
	case snap.RSI > rsiWeakHigh:
		bearish++
		reasons = append(reasons, "RSI leaning bearish")
	}

	// MACD histogram and line/signal agreement
	if snap.MACD.Histogram > 0 && snap.MACD.MACD > snap.MACD.Signal {
		bullish += 2
		reasons = append(reasons, "MACD bullish crossover")
	} else if snap.MACD.Histogram < 0 && snap.MACD.MACD < snap.MACD.Signal {
		bearish += 2
		reasons = append(reasons, "MACD bearish crossover")
	}

	// Bollinger %B extremes
	if snap.BB.PercentB < percentBLow {
		bullish += 2
		reasons = append(reasons, "price below lower Bollinger band")
	} else if snap.BB.PercentB > percentBHigh {
		bearish += 2
		reasons = append(reasons, "price above upper Bollinger band")
	}

	// Stochastic: both %K and %D at an extreme
	if snap.Stoch.K < stochLow && snap.Stoch.D < stochLow {
		bullish += 2
		reasons = append(reasons, "Stochastic oversold")
	} else if snap.Stoch.K > stochHigh && snap.Stoch.D > stochHigh {
		bearish += 2
		reasons = append(reasons, "Stochastic overbought")
	}

	// EMA20 vs EMA50 trend alignment with price
	if !math.IsNaN(snap.EMAFast) && !math.IsNaN(snap.EMASlow) {
		if snap.EMAFast > snap.EMASlow && snap.Close > snap.EMAFast {
			bullish += 2
			reasons = append(reasons, "uptrend: price above EMA20 above EMA50")
		} else if snap.EMAFast < snap.EMASlow && snap.Close < snap.EMAFast {
			bearish += 2
			reasons = append(reasons, "downtrend: price below EMA20 below EMA50")
		}
	}

	confidence := 0.0
	if bullish+bearish > 0 {
		confidence = math.Abs(float64(bullish-bearish)) / float64(bullish+bearish)
	}
	net := bullish - bearish

	action := ActionHold
	if net >= netThreshold && confidence >= minConfidence {
		action = ActionBuy
	} else if net <= -netThreshold && confidence >= minConfidence {
		action = ActionSell
	}

	// Weak-volume veto: thin tape overrides any score. NaN volume MA during
	// warmup compares false and never vetoes.
	if action != ActionHold && snap.Volume < volumeVetoRate*snap.VolumeMA {
		action = ActionHold
		reasons = append(reasons, "volume below 70% of average, holding")
	}

	return Signal{
		Action:     action,
		Confidence: confidence,
		Reasons:    reasons,
		Snapshot:   snap,
		Timestamp:  c.Timestamp,
	}
}
