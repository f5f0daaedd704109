// Package backtest drives the candle-by-candle simulation: it owns the
// portfolio, applies the signal generator and execution model, enforces
// risk limits and produces the equity curve and trade ledger.
//
// A single Engine instance runs one simulation, single-threaded and
// deterministic. Running independent engines concurrently is safe; sharing
// one is not.
package backtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"marketsim/services/execution"
	"marketsim/services/indicators"
	"marketsim/services/market"
	"marketsim/services/portfolio"
	"marketsim/services/signal"
)

const (
	equitySampleEvery = 10
	progressEvery     = 100
)

// Engine executes one backtest run.
type Engine struct {
	cfg     Config
	execCfg execution.Config
	rules   execution.Rules
	logger  *zap.Logger

	candles map[string]market.Series
	sets    map[string]*indicators.Set

	pf          *portfolio.Portfolio
	trades      []portfolio.Trade
	signals     []signal.Signal
	equityCurve []EquityPoint

	progress chan<- Progress
	stopped  atomic.Bool
}

// New validates the config and prepares an engine. Candle series must be
// ascending by timestamp; indicator sets are computed per symbol unless
// injected with SetIndicators before Run.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		execCfg: cfg.ExecutionConfig(),
		rules:   execution.DefaultRules(),
		logger:  logger,
	}, nil
}

// SetRules overrides the exchange trading rules entry fills are rounded
// against.
func (e *Engine) SetRules(r execution.Rules) { e.rules = r }

// SetProgress installs a progress sink. Sends are non-blocking: a slow or
// absent consumer never stalls or reorders the simulation.
func (e *Engine) SetProgress(ch chan<- Progress) { e.progress = ch }

// SetIndicators injects externally computed indicator sets keyed by symbol.
func (e *Engine) SetIndicators(sets map[string]*indicators.Set) { e.sets = sets }

// Stop requests cooperative cancellation. The flag is checked once per step;
// the run still performs forced liquidation and metrics computation, so the
// returned Result is always well-formed.
func (e *Engine) Stop() { e.stopped.Store(true) }

// Run executes the simulation over the supplied per-symbol candle series and
// returns the aggregate result. The loop skips a fixed warmup of 50 candles,
// then steps every symbol in config order, updating open positions before
// evaluating new entries, and recomputes portfolio equity once per step.
func (e *Engine) Run(ctx context.Context, candles map[string]market.Series) (*Result, error) {
	started := time.Now()

	if len(candles) == 0 {
		return nil, fmt.Errorf("backtest: no candle series supplied")
	}
	for _, sym := range e.cfg.Symbols {
		series, ok := candles[sym]
		if !ok || len(series) == 0 {
			return nil, fmt.Errorf("backtest: no candles for symbol %s", sym)
		}
		if err := series.Validate(); err != nil {
			return nil, fmt.Errorf("backtest: %s: %w", sym, err)
		}
	}
	e.candles = candles

	if e.sets == nil {
		e.sets = make(map[string]*indicators.Set, len(e.cfg.Symbols))
		for _, sym := range e.cfg.Symbols {
			e.sets[sym] = indicators.ComputeSet(candles[sym])
		}
	}

	e.pf = portfolio.New(e.cfg.InitialBalance)
	e.trades = nil
	e.signals = nil
	e.equityCurve = nil

	totalSteps := 0
	for _, sym := range e.cfg.Symbols {
		if n := len(candles[sym]); n > totalSteps {
			totalSteps = n
		}
	}

	e.logger.Info("starting backtest",
		zap.Strings("symbols", e.cfg.Symbols),
		zap.Int("total_steps", totalSteps),
		zap.Int("warmup", WarmupCandles),
		zap.Float64("initial_balance", e.cfg.InitialBalance))

	stepsRun := 0
	stoppedEarly := false
	step := WarmupCandles

	for ; step < totalSteps; step++ {
		if e.stopped.Load() || ctx.Err() != nil {
			stoppedEarly = true
			e.logger.Info("stop requested, finalizing run", zap.Int("step", step))
			break
		}

		for _, sym := range e.cfg.Symbols {
			series := e.candles[sym]
			if step >= len(series) {
				continue // series exhausted for this symbol
			}
			e.stepSymbol(sym, series, step)
		}

		e.pf.UpdateEquity()
		stepsRun++

		if step%equitySampleEvery == 0 {
			e.sampleEquity(e.stepTimestamp(step))
		}
		if step%progressEvery == 0 {
			e.emitProgress(step, totalSteps, started)
		}
		if step%1000 == 0 {
			e.logger.Debug("processed step",
				zap.Int("step", step),
				zap.Float64("equity", e.pf.Equity),
				zap.Int("trades", len(e.trades)))
		}

		// Drawdown circuit breaker: a deliberate stop condition, not an
		// error. Remaining positions are force-closed below.
		if e.pf.CurrentDrawdown > e.cfg.MaxDrawdownLimit {
			e.logger.Warn("max drawdown limit breached, terminating run",
				zap.Float64("drawdown", e.pf.CurrentDrawdown),
				zap.Float64("limit", e.cfg.MaxDrawdownLimit),
				zap.Int("step", step))
			stoppedEarly = true
			step++
			break
		}
	}

	e.closeAllPositions(step)
	e.pf.UpdateEquity()
	// The in-loop sampler may already have a point at this timestamp;
	// replace it so the curve stays strictly increasing and ends on the
	// post-liquidation equity.
	finalTS := e.stepTimestamp(min(step, totalSteps) - 1)
	if n := len(e.equityCurve); n > 0 && e.equityCurve[n-1].Timestamp == finalTS {
		e.equityCurve = e.equityCurve[:n-1]
	}
	e.sampleEquity(finalTS)

	result := &Result{
		Config:       e.cfg,
		Portfolio:    e.pf,
		Trades:       e.trades,
		Metrics:      ComputeMetrics(e.trades, e.pf),
		EquityCurve:  e.equityCurve,
		Signals:      e.signals,
		StartTime:    started,
		EndTime:      time.Now(),
		StepsRun:     stepsRun,
		TotalSteps:   totalSteps,
		StoppedEarly: stoppedEarly,
	}
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.logger.Info("backtest complete",
		zap.Int("steps_run", stepsRun),
		zap.Int("trades", len(e.trades)),
		zap.Float64("final_equity", e.pf.Equity),
		zap.Float64("max_drawdown", e.pf.MaxDrawdown),
		zap.Bool("stopped_early", stoppedEarly))

	return result, nil
}

// stepSymbol processes one symbol for one step: mark open position to
// market, resolve SL/TP against the bar's low/high, close on signal
// reversal, then evaluate a new entry.
func (e *Engine) stepSymbol(sym string, series market.Series, step int) {
	candle := series[step]
	sig := signal.Generate(series, e.sets[sym], step)
	if sig.Action != signal.ActionHold {
		e.signals = append(e.signals, sig)
	}

	if pos := e.pf.Position(sym); pos != nil {
		pos.MarkToMarket(candle.Close)

		switch {
		case pos.StopHit(candle.Low, candle.High):
			e.closePosition(pos, series, step, pos.StopLoss, portfolio.ReasonStopLoss)
		case pos.TakeProfitHit(candle.Low, candle.High):
			e.closePosition(pos, series, step, pos.TakeProfit, portfolio.ReasonTakeProfit)
		case pos.Side == portfolio.SideLong && sig.Action == signal.ActionSell,
			pos.Side == portfolio.SideShort && sig.Action == signal.ActionBuy:
			e.closePosition(pos, series, step, candle.Close, portfolio.ReasonSignalReversal)
		}
	}

	if e.pf.Position(sym) == nil {
		e.tryEnter(sym, series, step, sig)
	}
}

// tryEnter opens a position when the signal clears every gate: actionable
// with confidence >= 0.5, concurrency headroom, and a risk-sized order worth
// at least MinOrderValue.
func (e *Engine) tryEnter(sym string, series market.Series, step int, sig signal.Signal) {
	if sig.Action == signal.ActionHold || sig.Confidence < 0.5 {
		return
	}
	if len(e.pf.Positions) >= e.cfg.MaxConcurrentPositions {
		return
	}

	candle := series[step]
	ref := candle.Close
	if ref <= 0 {
		return
	}

	// Risk-based sizing: risk a fixed equity fraction against the stop
	// distance, clamped to the per-position balance cap.
	riskAmount := e.pf.Equity * e.cfg.RiskPerTrade
	stopDistance := ref * e.cfg.StopLossPercent
	rawSize := riskAmount / stopDistance
	notional := rawSize * ref
	if maxNotional := e.pf.Balance * e.cfg.MaxPositionSize; notional > maxNotional {
		notional = maxNotional
	}
	if notional < MinOrderValue {
		return
	}

	side := execution.SideBuy
	posSide := portfolio.SideLong
	if sig.Action == signal.ActionSell {
		side = execution.SideSell
		posSide = portfolio.SideShort
	}

	fill, err := execution.Simulate(execution.Order{
		Symbol:         sym,
		Side:           side,
		Type:           execution.OrderMarket,
		Notional:       notional,
		ReferencePrice: ref,
		Timestamp:      candle.Timestamp,
		Recent:         recentWindow(series, step),
	}, e.execCfg)
	if err != nil {
		e.logger.Error("entry fill failed", zap.String("symbol", sym), zap.Error(err))
		return
	}

	// Round the fill to venue-legal increments before opening.
	entryPrice, entrySize, ok := e.rules.Apply(fill.FillPrice, fill.FillSize)
	if !ok {
		e.logger.Debug("entry below exchange minimum notional",
			zap.String("symbol", sym),
			zap.Float64("price", entryPrice),
			zap.Float64("size", entrySize))
		return
	}

	var stopLoss, takeProfit float64
	if posSide == portfolio.SideLong {
		stopLoss = entryPrice * (1 - e.cfg.StopLossPercent)
		takeProfit = entryPrice * (1 + e.cfg.TakeProfitPercent)
	} else {
		stopLoss = entryPrice * (1 + e.cfg.StopLossPercent)
		takeProfit = entryPrice * (1 - e.cfg.TakeProfitPercent)
	}

	pos, err := e.pf.Open(sym, posSide, entryPrice, candle.Timestamp,
		entrySize, stopLoss, takeProfit, fill.Fees+fill.SpreadCost)
	if err != nil {
		e.logger.Error("open position failed", zap.String("symbol", sym), zap.Error(err))
		return
	}
	pos.MarkToMarket(candle.Close)

	e.logger.Debug("opened position",
		zap.String("symbol", sym),
		zap.String("side", string(posSide)),
		zap.Float64("entry", entryPrice),
		zap.Float64("size", entrySize),
		zap.Float64("confidence", sig.Confidence))
}

// closePosition re-runs the execution model for the exit fill and converts
// the position into a ledger trade in one atomic transition.
func (e *Engine) closePosition(pos *portfolio.Position, series market.Series, step int, refPrice float64, reason portfolio.CloseReason) {
	candle := series[step]

	side := execution.SideSell
	if pos.Side == portfolio.SideShort {
		side = execution.SideBuy
	}

	fill, err := execution.Simulate(execution.Order{
		Symbol:         pos.Symbol,
		Side:           side,
		Type:           execution.OrderMarket,
		Notional:       pos.Size * refPrice,
		ReferencePrice: refPrice,
		Timestamp:      candle.Timestamp,
		Recent:         recentWindow(series, step),
	}, e.execCfg)
	if err != nil {
		e.logger.Error("exit fill failed", zap.String("symbol", pos.Symbol), zap.Error(err))
		return
	}

	trade := e.pf.Close(pos, fill.FillPrice, candle.Timestamp, fill.Fees+fill.SpreadCost, reason)
	e.trades = append(e.trades, trade)

	e.logger.Debug("closed position",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", trade.PnL))
}

// closeAllPositions force-liquidates everything still open at each symbol's
// last processed candle. Used at end of run, after cancellation and after
// the drawdown breaker trips.
func (e *Engine) closeAllPositions(step int) {
	for _, sym := range e.cfg.Symbols {
		pos := e.pf.Position(sym)
		if pos == nil {
			continue
		}
		series := e.candles[sym]
		last := step - 1
		if last >= len(series) {
			last = len(series) - 1
		}
		if last < 0 {
			last = 0
		}
		e.closePosition(pos, series, last, series[last].Close, portfolio.ReasonEndOfBacktest)
	}
}

func (e *Engine) sampleEquity(ts int64) {
	e.equityCurve = append(e.equityCurve, EquityPoint{
		Timestamp: ts,
		Equity:    e.pf.Equity,
		Drawdown:  e.pf.CurrentDrawdown,
	})
}

func (e *Engine) emitProgress(step, totalSteps int, started time.Time) {
	if e.progress == nil {
		return
	}
	p := Progress{
		CurrentStep:     step,
		TotalSteps:      totalSteps,
		PercentComplete: float64(step) / float64(totalSteps) * 100,
		CurrentEquity:   e.pf.Equity,
		TradesCompleted: len(e.trades),
		Elapsed:         time.Since(started),
	}
	select {
	case e.progress <- p:
	default: // never block the loop on a slow consumer
	}
}

// stepTimestamp returns the timestamp of the first configured symbol that
// still has a candle at step, falling back to the latest available.
func (e *Engine) stepTimestamp(step int) int64 {
	if step < 0 {
		step = 0
	}
	for _, sym := range e.cfg.Symbols {
		series := e.candles[sym]
		if step < len(series) {
			return series[step].Timestamp
		}
	}
	var last int64
	for _, sym := range e.cfg.Symbols {
		series := e.candles[sym]
		if n := len(series); n > 0 && series[n-1].Timestamp > last {
			last = series[n-1].Timestamp
		}
	}
	return last
}

func recentWindow(series market.Series, step int) market.Series {
	start := step - 20
	if start < 0 {
		start = 0
	}
	return series[start : step+1]
}
