// Package portfolio owns position and ledger state for one simulation run.
// A Portfolio is exclusively owned by its simulation loop for the lifetime
// of the run; no locking is needed or provided.
package portfolio

import (
	"fmt"

	"github.com/google/uuid"
)

// Side of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// CloseReason explains why a trade was closed.
type CloseReason string

const (
	ReasonStopLoss       CloseReason = "Stop Loss"
	ReasonTakeProfit     CloseReason = "Take Profit"
	ReasonSignalReversal CloseReason = "Signal Reversal"
	ReasonEndOfBacktest  CloseReason = "End of Backtest"
)

// Position is a single open position. Mutated in place each step until
// closed, at which point it is removed and converted into a Trade.
type Position struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	EntryTime  int64   `json:"entry_time"`
	Size       float64 `json:"size"` // base units
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
	EntryCosts float64 `json:"entry_costs"` // fees+spread debited at entry
}

// MarkToMarket recomputes unrealized PnL from the current close.
func (p *Position) MarkToMarket(close float64) {
	if p.Side == SideLong {
		p.PnL = (close - p.EntryPrice) * p.Size
	} else {
		p.PnL = (p.EntryPrice - close) * p.Size
	}
	notional := p.EntryPrice * p.Size
	if notional > 0 {
		p.PnLPercent = p.PnL / notional * 100
	}
}

// StopHit checks the stop level against the bar's low/high, not just the
// close, so intrabar touches trigger.
func (p *Position) StopHit(low, high float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == SideLong {
		return low <= p.StopLoss
	}
	return high >= p.StopLoss
}

// TakeProfitHit mirrors StopHit for the profit target.
func (p *Position) TakeProfitHit(low, high float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == SideLong {
		return high >= p.TakeProfit
	}
	return low <= p.TakeProfit
}

// Trade is an immutable closed-trade record, appended to the run ledger.
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	EntryPrice float64     `json:"entry_price"`
	EntryTime  int64       `json:"entry_time"`
	ExitPrice  float64     `json:"exit_price"`
	ExitTime   int64       `json:"exit_time"`
	Size       float64     `json:"size"`
	PnL        float64     `json:"pnl"` // net of all fees and spread
	PnLPercent float64     `json:"pnl_percent"`
	Fees       float64     `json:"fees"` // entry + exit costs combined
	Reason     CloseReason `json:"reason"`
}

// Portfolio is the run ledger: balance, open positions and derived equity.
// Balance changes only on fills; equity is always recomputed as
// balance + sum of open PnL, never stored independently.
type Portfolio struct {
	InitialBalance  float64     `json:"initial_balance"`
	Balance         float64     `json:"balance"`
	Equity          float64     `json:"equity"`
	Positions       []*Position `json:"positions"`
	TotalPnL        float64     `json:"total_pnl"`
	TotalPnLPercent float64     `json:"total_pnl_percent"`
	PeakEquity      float64     `json:"peak_equity"`
	CurrentDrawdown float64     `json:"current_drawdown"`
	MaxDrawdown     float64     `json:"max_drawdown"`
}

// New creates a portfolio with the given starting balance.
func New(initialBalance float64) *Portfolio {
	return &Portfolio{
		InitialBalance: initialBalance,
		Balance:        initialBalance,
		Equity:         initialBalance,
		PeakEquity:     initialBalance,
	}
}

// Position returns the open position for symbol, or nil. At most one open
// position per symbol exists at a time.
func (pf *Portfolio) Position(symbol string) *Position {
	for _, p := range pf.Positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// Open registers a new position and debits its entry costs from balance.
func (pf *Portfolio) Open(symbol string, side Side, entryPrice float64, entryTime int64, size, stopLoss, takeProfit, entryCosts float64) (*Position, error) {
	if pf.Position(symbol) != nil {
		return nil, fmt.Errorf("portfolio: position already open for %s", symbol)
	}
	pos := &Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Size:       size,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		EntryCosts: entryCosts,
	}
	pf.Balance -= entryCosts
	pf.Positions = append(pf.Positions, pos)
	return pos, nil
}

// Close removes the position, credits realized PnL minus exit costs to the
// balance, and returns the immutable Trade record. Position destruction and
// Trade creation are a single atomic transition.
func (pf *Portfolio) Close(pos *Position, exitPrice float64, exitTime int64, exitCosts float64, reason CloseReason) Trade {
	var gross float64
	if pos.Side == SideLong {
		gross = (exitPrice - pos.EntryPrice) * pos.Size
	} else {
		gross = (pos.EntryPrice - exitPrice) * pos.Size
	}
	pf.Balance += gross - exitCosts

	net := gross - exitCosts - pos.EntryCosts
	notional := pos.EntryPrice * pos.Size
	pct := 0.0
	if notional > 0 {
		pct = net / notional * 100
	}

	for i, p := range pf.Positions {
		if p.ID == pos.ID {
			pf.Positions = append(pf.Positions[:i], pf.Positions[i+1:]...)
			break
		}
	}

	return Trade{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   exitTime,
		Size:       pos.Size,
		PnL:        net,
		PnLPercent: pct,
		Fees:       pos.EntryCosts + exitCosts,
		Reason:     reason,
	}
}

// UpdateEquity recomputes equity from balance and open PnL, then rolls the
// peak/drawdown tracking forward. PeakEquity is monotonically
// non-decreasing; MaxDrawdown never shrinks.
func (pf *Portfolio) UpdateEquity() {
	equity := pf.Balance
	for _, p := range pf.Positions {
		equity += p.PnL
	}
	pf.Equity = equity

	if equity > pf.PeakEquity {
		pf.PeakEquity = equity
	}
	if pf.PeakEquity > 0 {
		pf.CurrentDrawdown = (pf.PeakEquity - equity) / pf.PeakEquity
	}
	if pf.CurrentDrawdown > pf.MaxDrawdown {
		pf.MaxDrawdown = pf.CurrentDrawdown
	}

	pf.TotalPnL = equity - pf.InitialBalance
	if pf.InitialBalance > 0 {
		pf.TotalPnLPercent = pf.TotalPnL / pf.InitialBalance * 100
	}
}
