// Package indicators computes technical-indicator series from candle data.
//
// Every function is a pure transform: one same-length output slice per call,
// deterministic, no shared state. Indices below an indicator's warmup period
// hold math.NaN() unless a neutral default is documented on the function
// (RSI pins to 50, Stochastic to 50, Bollinger synthesizes a placeholder
// band). Callers must treat the first max(period) indices as unusable.
package indicators

import (
	"math"

	"marketsim/services/market"
)

// Default periods used by ComputeSet.
const (
	RSIPeriod        = 14
	EMAFastPeriod    = 20
	EMASlowPeriod    = 50
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	BBPeriod         = 20
	BBStdDev         = 2.0
	ATRPeriod        = 14
	StochKPeriod     = 14
	StochDPeriod     = 3
	ADXPeriod        = 14
	VolumeMAPeriod   = 20
)

// MACDPoint is one aligned MACD sample.
type MACDPoint struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BBPoint is one aligned Bollinger Bands sample.
type BBPoint struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Width    float64 `json:"width"`
	PercentB float64 `json:"percent_b"`
}

// ATRPoint is one aligned ATR sample.
type ATRPoint struct {
	ATR        float64 `json:"atr"`
	ATRPercent float64 `json:"atr_percent"`
}

// StochPoint is one aligned Stochastic sample.
type StochPoint struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Set holds all indicator series for one symbol, index-aligned with the
// candle series they were computed from.
type Set struct {
	RSI      []float64
	EMAFast  []float64 // EMA20
	EMASlow  []float64 // EMA50
	MACD     []MACDPoint
	BB       []BBPoint
	ATR      []ATRPoint
	Stoch    []StochPoint
	ADX      []float64
	VolumeMA []float64
}

// ComputeSet runs the full pipeline with default periods.
func ComputeSet(candles market.Series) *Set {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	return &Set{
		RSI:      RSI(candles, RSIPeriod),
		EMAFast:  EMA(closes, EMAFastPeriod),
		EMASlow:  EMA(closes, EMASlowPeriod),
		MACD:     MACD(candles, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod),
		BB:       BollingerBands(candles, BBPeriod, BBStdDev),
		ATR:      ATR(candles, ATRPeriod),
		Stoch:    Stochastic(candles, StochKPeriod, StochDPeriod),
		ADX:      ADX(candles, ADXPeriod),
		VolumeMA: SMA(volumes, VolumeMAPeriod),
	}
}

// SMA returns the trailing arithmetic mean over period values.
// Indices below period-1 are NaN.
func SMA(data []float64, period int) []float64 {
	result := make([]float64, len(data))
	for i := range result {
		result[i] = math.NaN()
	}
	if period <= 0 || len(data) < period {
		return result
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)
	for i := period; i < len(data); i++ {
		sum += data[i] - data[i-period]
		result[i] = sum / float64(period)
	}
	return result
}

// EMA returns the exponential moving average seeded with the SMA of the
// first period values at index period-1 (so EMA[period-1] == SMA[period-1]
// exactly), then smoothed with alpha = 2/(period+1). Indices below period-1
// are NaN.
func EMA(data []float64, period int) []float64 {
	result := make([]float64, len(data))
	for i := range result {
		result[i] = math.NaN()
	}
	if period <= 0 || len(data) < period {
		return result
	}
	var sma float64
	for i := 0; i < period; i++ {
		sma += data[i]
	}
	sma /= float64(period)
	result[period-1] = sma

	alpha := 2.0 / float64(period+1)
	for i := period; i < len(data); i++ {
		result[i] = (data[i]-result[i-1])*alpha + result[i-1]
	}
	return result
}

// RSI computes the relative strength index with Wilder smoothing of average
// gain/loss. The first period entries hold the neutral default 50; a zero
// average loss yields RSI 100.
func RSI(candles market.Series, period int) []float64 {
	result := make([]float64, len(candles))
	for i := range result {
		result[i] = 50
	}
	if period <= 0 || len(candles) <= period {
		return result
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	result[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		result[i] = rsiValue(avgGain, avgLoss)
	}
	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (fast EMA minus slow EMA, 0 where either EMA
// is undefined), its signal line (EMA of the MACD line) and the histogram.
func MACD(candles market.Series, fast, slow, signal int) []MACDPoint {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	macdLine := make([]float64, len(candles))
	for i := range macdLine {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			macdLine[i] = 0
		} else {
			macdLine[i] = fastEMA[i] - slowEMA[i]
		}
	}
	signalLine := EMA(macdLine, signal)

	result := make([]MACDPoint, len(candles))
	for i := range result {
		sig := signalLine[i]
		if math.IsNaN(sig) {
			sig = 0
		}
		result[i] = MACDPoint{
			MACD:      macdLine[i],
			Signal:    sig,
			Histogram: macdLine[i] - sig,
		}
	}
	return result
}

// BollingerBands computes SMA-centered bands at stdDev population standard
// deviations over the trailing window. Before warmup a placeholder band of
// ±2% around close is synthesized (width 0.04, %B 0.5) so downstream
// consumers stay arithmetic-safe.
func BollingerBands(candles market.Series, period int, stdDev float64) []BBPoint {
	result := make([]BBPoint, len(candles))
	for i := range candles {
		close := candles[i].Close
		if i < period-1 {
			result[i] = BBPoint{
				Upper:    close * 1.02,
				Middle:   close,
				Lower:    close * 0.98,
				Width:    0.04,
				PercentB: 0.5,
			}
			continue
		}

		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += candles[j].Close
		}
		mean := sum / float64(period)

		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := candles[j].Close - mean
			variance += d * d
		}
		sigma := math.Sqrt(variance / float64(period))

		upper := mean + stdDev*sigma
		lower := mean - stdDev*sigma
		width := 0.0
		if mean != 0 {
			width = (upper - lower) / mean
		}
		percentB := 0.5
		if upper != lower {
			percentB = (close - lower) / (upper - lower)
		}
		result[i] = BBPoint{Upper: upper, Middle: mean, Lower: lower, Width: width, PercentB: percentB}
	}
	return result
}

// ATR computes the average true range, EMA-smoothed over period and seeded
// with the SMA of the first period true ranges. The first candle's true
// range is high-low. Indices below period-1 are NaN.
func ATR(candles market.Series, period int) []ATRPoint {
	result := make([]ATRPoint, len(candles))
	for i := range result {
		result[i] = ATRPoint{ATR: math.NaN(), ATRPercent: math.NaN()}
	}
	if period <= 0 || len(candles) < period {
		return result
	}

	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	smoothed := EMA(tr, period)
	for i := period - 1; i < len(candles); i++ {
		atr := smoothed[i]
		pct := 0.0
		if candles[i].Close != 0 {
			pct = atr / candles[i].Close * 100
		}
		result[i] = ATRPoint{ATR: atr, ATRPercent: pct}
	}
	return result
}

// Stochastic computes %K over the trailing kPeriod window and %D as the SMA
// of %K over dPeriod. %K is 50 when the window range is zero or during
// warmup; %D falls back to 50 until its own warmup completes.
func Stochastic(candles market.Series, kPeriod, dPeriod int) []StochPoint {
	k := make([]float64, len(candles))
	for i := range candles {
		if i < kPeriod-1 {
			k[i] = 50
			continue
		}
		lowest := math.MaxFloat64
		highest := -math.MaxFloat64
		for j := i - kPeriod + 1; j <= i; j++ {
			if candles[j].Low < lowest {
				lowest = candles[j].Low
			}
			if candles[j].High > highest {
				highest = candles[j].High
			}
		}
		if highest == lowest {
			k[i] = 50
			continue
		}
		k[i] = (candles[i].Close - lowest) / (highest - lowest) * 100
	}

	d := SMA(k, dPeriod)
	result := make([]StochPoint, len(candles))
	for i := range result {
		dv := d[i]
		if math.IsNaN(dv) {
			dv = 50
		}
		result[i] = StochPoint{K: k[i], D: dv}
	}
	return result
}

// ADX computes the average directional index from +DM/-DM smoothed with an
// EMA over period. DX is 0 when the DI sum is zero. Indices before the
// smoothing chain converges (below period) hold 0, a documented neutral
// meaning "no measurable trend".
func ADX(candles market.Series, period int) []float64 {
	result := make([]float64, len(candles))
	if len(candles) < 2 {
		return result
	}

	alpha := 2.0 / float64(period+1)
	var smTR, smPlusDM, smMinusDM float64
	adx := math.NaN()

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		prevClose := candles[i-1].Close
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-prevClose), math.Abs(candles[i].Low-prevClose)))

		if i == 1 {
			smTR, smPlusDM, smMinusDM = tr, plusDM, minusDM
		} else {
			smTR = smTR + (tr-smTR)*alpha
			smPlusDM = smPlusDM + (plusDM-smPlusDM)*alpha
			smMinusDM = smMinusDM + (minusDM-smMinusDM)*alpha
		}

		var plusDI, minusDI float64
		if smTR != 0 {
			plusDI = smPlusDM / smTR * 100
			minusDI = smMinusDM / smTR * 100
		}

		dx := 0.0
		if plusDI+minusDI != 0 {
			dx = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
		}

		if math.IsNaN(adx) {
			adx = dx
		} else {
			adx = adx + (dx-adx)*alpha
		}
		if i >= period {
			result[i] = adx
		}
	}
	return result
}
