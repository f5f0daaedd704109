package feed

import (
	"context"

	"go.uber.org/zap"

	"marketsim/services/backtest"
	"marketsim/services/execution"
	"marketsim/services/indicators"
	"marketsim/services/market"
	"marketsim/services/portfolio"
	"marketsim/services/signal"
)

// maxHistory bounds the per-symbol rolling window. Indicators need at most
// the slow EMA period plus warmup; 500 bars leaves ample slack.
const maxHistory = 500

// PaperTrader applies the simulation strategy to live closed candles with a
// virtual portfolio. Same signal, execution and portfolio code paths as a
// historical run, driven by a feed instead of a loop index.
type PaperTrader struct {
	cfg     backtest.Config
	execCfg execution.Config
	rules   execution.Rules
	logger  *zap.Logger

	history map[string]market.Series
	pf      *portfolio.Portfolio
	trades  []portfolio.Trade
}

// NewPaperTrader validates the config and seeds per-symbol history, which
// must hold at least the warmup window before signals fire.
func NewPaperTrader(cfg backtest.Config, history map[string]market.Series, logger *zap.Logger) (*PaperTrader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := make(map[string]market.Series, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		h[sym] = append(market.Series(nil), history[sym]...)
	}
	return &PaperTrader{
		cfg:     cfg,
		execCfg: cfg.ExecutionConfig(),
		rules:   execution.DefaultRules(),
		logger:  logger,
		history: h,
		pf:      portfolio.New(cfg.InitialBalance),
	}, nil
}

// Portfolio exposes the current virtual portfolio state.
func (t *PaperTrader) Portfolio() *portfolio.Portfolio { return t.pf }

// Trades returns the closed-trade ledger so far.
func (t *PaperTrader) Trades() []portfolio.Trade { return t.trades }

// Run consumes events until the channel closes or ctx is cancelled.
func (t *PaperTrader) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.OnCandle(ev.Symbol, ev.Candle)
		}
	}
}

// OnCandle processes one closed candle: roll history forward, re-evaluate
// indicators and signal, manage the open position, then consider an entry.
func (t *PaperTrader) OnCandle(symbol string, candle market.Candle) {
	series := append(t.history[symbol], candle)
	if len(series) > maxHistory {
		series = series[len(series)-maxHistory:]
	}
	t.history[symbol] = series

	if len(series) < backtest.WarmupCandles {
		return
	}

	set := indicators.ComputeSet(series)
	step := len(series) - 1
	sig := signal.Generate(series, set, step)

	if pos := t.pf.Position(symbol); pos != nil {
		pos.MarkToMarket(candle.Close)
		switch {
		case pos.StopHit(candle.Low, candle.High):
			t.close(pos, series, pos.StopLoss, candle, portfolio.ReasonStopLoss)
		case pos.TakeProfitHit(candle.Low, candle.High):
			t.close(pos, series, pos.TakeProfit, candle, portfolio.ReasonTakeProfit)
		case pos.Side == portfolio.SideLong && sig.Action == signal.ActionSell,
			pos.Side == portfolio.SideShort && sig.Action == signal.ActionBuy:
			t.close(pos, series, candle.Close, candle, portfolio.ReasonSignalReversal)
		}
	}

	if t.pf.Position(symbol) == nil {
		t.tryEnter(symbol, series, candle, sig)
	}
	t.pf.UpdateEquity()
}

// CloseAll liquidates every open position at its symbol's latest close.
func (t *PaperTrader) CloseAll() {
	for _, sym := range t.cfg.Symbols {
		pos := t.pf.Position(sym)
		if pos == nil {
			continue
		}
		series := t.history[sym]
		if len(series) == 0 {
			continue
		}
		last := series[len(series)-1]
		t.close(pos, series, last.Close, last, portfolio.ReasonEndOfBacktest)
	}
	t.pf.UpdateEquity()
}

func (t *PaperTrader) tryEnter(symbol string, series market.Series, candle market.Candle, sig signal.Signal) {
	if sig.Action == signal.ActionHold || sig.Confidence < 0.5 {
		return
	}
	if len(t.pf.Positions) >= t.cfg.MaxConcurrentPositions {
		return
	}

	ref := candle.Close
	if ref <= 0 {
		return
	}
	riskAmount := t.pf.Equity * t.cfg.RiskPerTrade
	stopDistance := ref * t.cfg.StopLossPercent
	notional := riskAmount / stopDistance * ref
	if maxNotional := t.pf.Balance * t.cfg.MaxPositionSize; notional > maxNotional {
		notional = maxNotional
	}
	if notional < backtest.MinOrderValue {
		return
	}

	side := execution.SideBuy
	posSide := portfolio.SideLong
	if sig.Action == signal.ActionSell {
		side = execution.SideSell
		posSide = portfolio.SideShort
	}

	fill, err := execution.Simulate(execution.Order{
		Symbol:         symbol,
		Side:           side,
		Type:           execution.OrderMarket,
		Notional:       notional,
		ReferencePrice: ref,
		Timestamp:      candle.Timestamp,
		Recent:         tail(series, 21),
	}, t.execCfg)
	if err != nil {
		t.logger.Error("paper entry failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Round the fill to venue-legal increments before opening.
	entryPrice, entrySize, ok := t.rules.Apply(fill.FillPrice, fill.FillSize)
	if !ok {
		t.logger.Debug("paper entry below exchange minimum notional",
			zap.String("symbol", symbol),
			zap.Float64("price", entryPrice),
			zap.Float64("size", entrySize))
		return
	}

	var stopLoss, takeProfit float64
	if posSide == portfolio.SideLong {
		stopLoss = entryPrice * (1 - t.cfg.StopLossPercent)
		takeProfit = entryPrice * (1 + t.cfg.TakeProfitPercent)
	} else {
		stopLoss = entryPrice * (1 + t.cfg.StopLossPercent)
		takeProfit = entryPrice * (1 - t.cfg.TakeProfitPercent)
	}

	pos, err := t.pf.Open(symbol, posSide, entryPrice, candle.Timestamp,
		entrySize, stopLoss, takeProfit, fill.Fees+fill.SpreadCost)
	if err != nil {
		t.logger.Error("paper open failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	pos.MarkToMarket(candle.Close)

	t.logger.Info("paper position opened",
		zap.String("symbol", symbol),
		zap.String("side", string(posSide)),
		zap.Float64("entry", entryPrice),
		zap.Float64("size", entrySize))
}

func (t *PaperTrader) close(pos *portfolio.Position, series market.Series, refPrice float64, candle market.Candle, reason portfolio.CloseReason) {
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
		Recent:         tail(series, 21),
	}, t.execCfg)
	if err != nil {
		t.logger.Error("paper exit failed", zap.String("symbol", pos.Symbol), zap.Error(err))
		return
	}

	trade := t.pf.Close(pos, fill.FillPrice, candle.Timestamp, fill.Fees+fill.SpreadCost, reason)
	t.trades = append(t.trades, trade)

	t.logger.Info("paper position closed",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", trade.PnL))
}

func tail(series market.Series, n int) market.Series {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
