// Package execution simulates realistic order fills: volatility-scaled
// slippage, time-of-day liquidity, order-book walking, fees and spread.
//
// The model is a pure transform of its inputs so independent backtests can
// run it concurrently; it holds no state between calls.
package execution

import (
	"errors"
	"math"
	"strings"
	"time"

	"marketsim/services/market"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects the fee schedule and slippage factor.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Call-boundary violations. These are programmer errors, not runtime
// conditions to recover from mid-run.
var (
	ErrInvalidNotional  = errors.New("execution: notional must be positive")
	ErrInvalidPrice     = errors.New("execution: reference price must be positive")
	ErrUnknownOrderType = errors.New("execution: unknown order type")
	ErrUnknownSide      = errors.New("execution: unknown order side")
)

// Config holds the execution-model tunables.
type Config struct {
	BaseSlippage         float64 // fraction of price, e.g. 0.0005
	VolatilityMultiplier float64
	VolatilityWindow     int // trailing candles for the vol estimate
	TakerFee             float64
	MakerFee             float64
	OrderBookDepth       int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		BaseSlippage:         0.0005,
		VolatilityMultiplier: 2.0,
		VolatilityWindow:     20,
		TakerFee:             0.001,
		MakerFee:             0.0005,
		OrderBookDepth:       10,
	}
}

// Order is a fill request.
type Order struct {
	Symbol         string
	Side           Side
	Type           OrderType
	Notional       float64 // quote-currency value to fill
	ReferencePrice float64
	Timestamp      int64             // ms, drives time-of-day liquidity
	Book           *market.OrderBook // optional depth snapshot
	Recent         market.Series     // trailing candles for the vol estimate
}

// Fill is the immutable result of one simulated execution.
type Fill struct {
	FillPrice       float64 `json:"fill_price"`
	FillSize        float64 `json:"fill_size"` // base units
	Slippage        float64 `json:"slippage"`  // per-unit price displacement
	SlippagePercent float64 `json:"slippage_percent"`
	SpreadCost      float64 `json:"spread_cost"`
	Fees            float64 `json:"fees"`
	TotalCost       float64 `json:"total_cost"`
}

// Annualization assumes 5-minute bars: sqrt(252*24*12) periods per year.
var annualizeFactor = math.Sqrt(252 * 24 * 12)

const (
	defaultVolatility = 0.02
	minVolatility     = 0.005
	maxVolatility     = 0.50
	offHoursFactor    = 1.3
)

// Simulate computes a realistic fill for the order. Zero or negative
// notional or reference price and unknown order types are rejected with
// typed errors; an empty candle history degrades to the default volatility
// instead of failing.
func Simulate(order Order, cfg Config) (*Fill, error) {
	if order.Notional <= 0 {
		return nil, ErrInvalidNotional
	}
	if order.ReferencePrice <= 0 {
		return nil, ErrInvalidPrice
	}
	if order.Type != OrderMarket && order.Type != OrderLimit {
		return nil, ErrUnknownOrderType
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return nil, ErrUnknownSide
	}

	vol := EstimateVolatility(order.Recent, cfg.VolatilityWindow)
	slippage := slippagePerUnit(order, cfg, vol)

	var fill Fill
	if order.Book != nil && len(order.Book.Bids) > 0 && len(order.Book.Asks) > 0 {
		fill = walkBook(order, cfg, slippage)
	} else {
		fill = referenceFill(order, slippage)
	}
	if order.ReferencePrice > 0 {
		fill.SlippagePercent = fill.Slippage / order.ReferencePrice * 100
	}

	feeRate := cfg.TakerFee
	if order.Type == OrderLimit {
		feeRate = cfg.MakerFee
	}
	fill.Fees = order.Notional * feeRate

	// Taker fills cross half the quoted spread; makers pay fee only.
	if order.Type == OrderMarket {
		spread := BaseSpread(order.Symbol) * (1 + 5*vol)
		fill.SpreadCost = order.Notional * spread / 2
	}

	fill.TotalCost = fill.Fees + fill.SpreadCost + fill.Slippage*fill.FillSize
	return &fill, nil
}

// EstimateVolatility annualizes the standard deviation of trailing log
// returns over at most window candles, clamped to [0.5%, 50%]. Fewer than
// two returns falls back to the 2% default.
func EstimateVolatility(recent market.Series, window int) float64 {
	if window <= 0 {
		window = 20
	}
	start := len(recent) - window - 1
	if start < 0 {
		start = 0
	}
	var returns []float64
	for i := start + 1; i < len(recent); i++ {
		prev := recent[i-1].Close
		cur := recent[i].Close
		if prev > 0 && cur > 0 {
			returns = append(returns, math.Log(cur/prev))
		}
	}
	if len(returns) < 2 {
		return defaultVolatility
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	vol := math.Sqrt(variance) * annualizeFactor
	if vol < minVolatility {
		return minVolatility
	}
	if vol > maxVolatility {
		return maxVolatility
	}
	return vol
}

// slippagePerUnit applies the full slippage formula: base slippage scaled by
// liquidity hours, volatility, order type and a bounded size-impact curve.
func slippagePerUnit(order Order, cfg Config, vol float64) float64 {
	base := cfg.BaseSlippage * liquidityFactor(order.Timestamp)

	orderTypeFactor := 1.0
	if order.Type == OrderLimit {
		orderTypeFactor = 0.3
	}
	sizeImpact := 1 + 0.1*math.Sqrt(math.Min(order.Notional/10000, 10))

	return order.ReferencePrice * base * (1 + vol*cfg.VolatilityMultiplier) * orderTypeFactor * sizeImpact
}

// liquidityFactor degrades liquidity outside the US/Asia overlap windows:
// UTC [13,22) and [0,9) trade at normal depth, everything else 1.3x thinner.
func liquidityFactor(tsMillis int64) float64 {
	hour := time.UnixMilli(tsMillis).UTC().Hour()
	if (hour >= 13 && hour < 22) || (hour >= 0 && hour < 9) {
		return 1.0
	}
	return offHoursFactor
}

// BaseSpread returns the symbol-specific quoted spread before volatility
// widening: 1bp BTC, 2bp ETH, 5bp SOL, 3bp anything else.
func BaseSpread(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "BTC"):
		return 0.0001
	case strings.Contains(s, "ETH"):
		return 0.0002
	case strings.Contains(s, "SOL"):
		return 0.0005
	default:
		return 0.0003
	}
}

// referenceFill displaces the reference price by the modeled slippage, the
// common backtest case with no depth snapshot.
func referenceFill(order Order, slippage float64) Fill {
	price := order.ReferencePrice + slippage
	if order.Side == SideSell {
		price = order.ReferencePrice - slippage
	}
	return Fill{
		FillPrice: price,
		FillSize:  order.Notional / price,
		Slippage:  slippage,
	}
}

// walkBook consumes notional against depth levels on the correct side.
// Residual notional past the last level fills at an extrapolated worse price
// using the plain slippage displacement from that level. Slippage is
// measured against the book mid-price.
func walkBook(order Order, cfg Config, slippage float64) Fill {
	levels := order.Book.Asks
	if order.Side == SideSell {
		levels = order.Book.Bids
	}
	depth := cfg.OrderBookDepth
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}

	remaining := order.Notional
	var size float64
	lastPrice := order.ReferencePrice
	for i := 0; i < depth && remaining > 0; i++ {
		lvl := levels[i]
		if lvl.Price <= 0 || lvl.Amount <= 0 {
			continue
		}
		lastPrice = lvl.Price
		levelNotional := lvl.Price * lvl.Amount
		take := math.Min(remaining, levelNotional)
		size += take / lvl.Price
		remaining -= take
	}
	if remaining > 0 {
		worse := lastPrice + slippage
		if order.Side == SideSell {
			worse = lastPrice - slippage
		}
		if worse > 0 {
			size += remaining / worse
		}
	}
	if size <= 0 {
		// Every level was unusable and the extrapolated price collapsed;
		// fall back to the plain displaced-reference fill.
		return referenceFill(order, slippage)
	}

	avg := order.Notional / size
	mid := order.Book.Mid()
	slip := avg - mid
	if order.Side == SideSell {
		slip = mid - avg
	}
	if slip < 0 {
		slip = 0
	}
	return Fill{FillPrice: avg, FillSize: size, Slippage: slip}
}
