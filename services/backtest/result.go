package backtest

import (
	"time"

	"marketsim/services/portfolio"
	"marketsim/services/signal"
)

// EquityPoint is one equity-curve sample.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
	Drawdown  float64 `json:"drawdown"`
}

// Progress is a fire-and-forget run-status notification. Consumers must
// never be required for correctness; the loop drops updates rather than
// block on a slow receiver.
type Progress struct {
	CurrentStep     int           `json:"current_step"`
	TotalSteps      int           `json:"total_steps"`
	PercentComplete float64       `json:"percent_complete"`
	CurrentEquity   float64       `json:"current_equity"`
	TradesCompleted int           `json:"trades_completed"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Result is the aggregate output of one run, produced exactly once at run
// end. Partial runs (cancellation, drawdown breaker) still produce a fully
// formed Result.
type Result struct {
	Config       Config               `json:"config"`
	Portfolio    *portfolio.Portfolio `json:"portfolio"`
	Trades       []portfolio.Trade    `json:"trades"`
	Metrics      Metrics              `json:"metrics"`
	EquityCurve  []EquityPoint        `json:"equity_curve"`
	Signals      []signal.Signal      `json:"signals"` // non-HOLD signals emitted
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
	Duration     time.Duration        `json:"duration"`
	StepsRun     int                  `json:"steps_run"`
	TotalSteps   int                  `json:"total_steps"`
	StoppedEarly bool                 `json:"stopped_early"` // drawdown breaker or cancellation
}
