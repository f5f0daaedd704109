// Package arrowexport serializes run artifacts to Apache Arrow IPC so
// results can be loaded straight into analysis tooling without CSV round
// trips. Candle series, equity curves and trade ledgers each get their own
// stream with a fixed schema.
package arrowexport

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"marketsim/services/backtest"
	"marketsim/services/market"
	"marketsim/services/portfolio"
)

// Exporter writes Arrow IPC streams. Safe for sequential reuse; writers are
// created per call.
type Exporter struct {
	pool   memory.Allocator
	logger *zap.Logger
}

func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{pool: memory.NewGoAllocator(), logger: logger}
}

var candleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "drawdown", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "entry_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "size", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl_percent", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fees", Type: arrow.PrimitiveTypes.Float64},
	{Name: "reason", Type: arrow.BinaryTypes.String},
}, nil)

// WriteCandles encodes a candle series as one Arrow record.
func (e *Exporter) WriteCandles(w io.Writer, symbol string, series market.Series) error {
	b := array.NewRecordBuilder(e.pool, candleSchema)
	defer b.Release()

	for _, c := range series {
		b.Field(0).(*array.StringBuilder).Append(symbol)
		b.Field(1).(*array.Int64Builder).Append(c.Timestamp)
		b.Field(2).(*array.Float64Builder).Append(c.Open)
		b.Field(3).(*array.Float64Builder).Append(c.High)
		b.Field(4).(*array.Float64Builder).Append(c.Low)
		b.Field(5).(*array.Float64Builder).Append(c.Close)
		b.Field(6).(*array.Float64Builder).Append(c.Volume)
	}

	return e.writeRecord(w, candleSchema, b)
}

// WriteEquityCurve encodes the sampled equity curve.
func (e *Exporter) WriteEquityCurve(w io.Writer, curve []backtest.EquityPoint) error {
	b := array.NewRecordBuilder(e.pool, equitySchema)
	defer b.Release()

	for _, p := range curve {
		b.Field(0).(*array.Int64Builder).Append(p.Timestamp)
		b.Field(1).(*array.Float64Builder).Append(p.Equity)
		b.Field(2).(*array.Float64Builder).Append(p.Drawdown)
	}

	return e.writeRecord(w, equitySchema, b)
}

// WriteTrades encodes the closed-trade ledger.
func (e *Exporter) WriteTrades(w io.Writer, trades []portfolio.Trade) error {
	b := array.NewRecordBuilder(e.pool, tradeSchema)
	defer b.Release()

	for _, t := range trades {
		b.Field(0).(*array.StringBuilder).Append(t.ID)
		b.Field(1).(*array.StringBuilder).Append(t.Symbol)
		b.Field(2).(*array.StringBuilder).Append(string(t.Side))
		b.Field(3).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(4).(*array.Int64Builder).Append(t.EntryTime)
		b.Field(5).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(6).(*array.Int64Builder).Append(t.ExitTime)
		b.Field(7).(*array.Float64Builder).Append(t.Size)
		b.Field(8).(*array.Float64Builder).Append(t.PnL)
		b.Field(9).(*array.Float64Builder).Append(t.PnLPercent)
		b.Field(10).(*array.Float64Builder).Append(t.Fees)
		b.Field(11).(*array.StringBuilder).Append(string(t.Reason))
	}

	return e.writeRecord(w, tradeSchema, b)
}

// ExportResult writes equity curve and trade ledger next to each other as
// <prefix>_equity.arrow and <prefix>_trades.arrow.
func (e *Exporter) ExportResult(prefix string, res *backtest.Result) error {
	if err := e.writeFile(prefix+"_equity.arrow", func(w io.Writer) error {
		return e.WriteEquityCurve(w, res.EquityCurve)
	}); err != nil {
		return err
	}
	if err := e.writeFile(prefix+"_trades.arrow", func(w io.Writer) error {
		return e.WriteTrades(w, res.Trades)
	}); err != nil {
		return err
	}
	e.logger.Info("exported result",
		zap.String("prefix", prefix),
		zap.Int("equity_points", len(res.EquityCurve)),
		zap.Int("trades", len(res.Trades)))
	return nil
}

func (e *Exporter) writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("arrowexport: create %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("arrowexport: write %s: %w", path, err)
	}
	return nil
}

func (e *Exporter) writeRecord(w io.Writer, schema *arrow.Schema, b *array.RecordBuilder) error {
	record := b.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(e.pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("arrowexport: write record: %w", err)
	}
	return writer.Close()
}
