package portfolio

import (
	"math"
	"testing"
)

func TestOpenDebitsOnlyEntryCosts(t *testing.T) {
	pf := New(10000)
	_, err := pf.Open("BTCUSDT", SideLong, 100, 1000, 5, 95, 110, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if pf.Balance != 10000-2.5 {
		t.Fatalf("balance must drop by entry costs only, got %v", pf.Balance)
	}
	if pf.Position("BTCUSDT") == nil {
		t.Fatal("position must be registered")
	}
}

func TestSecondPositionSameSymbolRejected(t *testing.T) {
	pf := New(10000)
	if _, err := pf.Open("BTCUSDT", SideLong, 100, 1000, 5, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Open("BTCUSDT", SideShort, 100, 2000, 5, 0, 0, 0); err == nil {
		t.Fatal("second position for same symbol must be rejected")
	}
}

func TestCloseRealizesNetPnL(t *testing.T) {
	pf := New(10000)
	pos, _ := pf.Open("BTCUSDT", SideLong, 100, 1000, 10, 0, 0, 3)
	trade := pf.Close(pos, 110, 2000, 4, ReasonTakeProfit)

	wantGross := (110.0 - 100.0) * 10
	wantNet := wantGross - 4 - 3
	if trade.PnL != wantNet {
		t.Fatalf("net PnL: want %v, got %v", wantNet, trade.PnL)
	}
	if trade.Fees != 7 {
		t.Fatalf("combined fees: want 7, got %v", trade.Fees)
	}
	if pf.Position("BTCUSDT") != nil {
		t.Fatal("position must be removed on close")
	}
	// balance: -3 at entry, +gross-4 at exit
	if pf.Balance != 10000-3+wantGross-4 {
		t.Fatalf("balance mismatch: %v", pf.Balance)
	}
}

func TestShortPnLMirrorsLong(t *testing.T) {
	pf := New(10000)
	pos, _ := pf.Open("ETHUSDT", SideShort, 100, 1000, 10, 0, 0, 0)
	pos.MarkToMarket(90)
	if pos.PnL != 100 {
		t.Fatalf("short gains on a drop: want 100, got %v", pos.PnL)
	}
	trade := pf.Close(pos, 90, 2000, 0, ReasonSignalReversal)
	if trade.PnL != 100 {
		t.Fatalf("realized short PnL: want 100, got %v", trade.PnL)
	}
}

func TestEquityIsBalancePlusOpenPnL(t *testing.T) {
	pf := New(10000)
	a, _ := pf.Open("BTCUSDT", SideLong, 100, 1000, 5, 0, 0, 1)
	b, _ := pf.Open("ETHUSDT", SideShort, 50, 1000, 10, 0, 0, 1)
	a.MarkToMarket(104) // +20
	b.MarkToMarket(52)  // -20
	pf.UpdateEquity()

	want := pf.Balance + 20 - 20
	if math.Abs(pf.Equity-want) > 1e-9 {
		t.Fatalf("equity invariant violated: %v != %v", pf.Equity, want)
	}
}

func TestPeakAndMaxDrawdownMonotonic(t *testing.T) {
	pf := New(10000)
	pos, _ := pf.Open("BTCUSDT", SideLong, 100, 1000, 10, 0, 0, 0)

	pos.MarkToMarket(110)
	pf.UpdateEquity()
	peakAfterRise := pf.PeakEquity
	if peakAfterRise != 10100 {
		t.Fatalf("peak should track the rise, got %v", peakAfterRise)
	}

	pos.MarkToMarket(90)
	pf.UpdateEquity()
	if pf.PeakEquity != peakAfterRise {
		t.Fatal("peak must never decrease")
	}
	ddAtTrough := pf.MaxDrawdown
	if ddAtTrough <= 0 {
		t.Fatal("drawdown must register after the fall")
	}

	pos.MarkToMarket(105)
	pf.UpdateEquity()
	if pf.MaxDrawdown != ddAtTrough {
		t.Fatal("max drawdown must never shrink")
	}
	if pf.CurrentDrawdown >= ddAtTrough {
		t.Fatal("current drawdown should recover")
	}
}

func TestStopAndTakeProfitTriggers(t *testing.T) {
	long := &Position{Side: SideLong, StopLoss: 95, TakeProfit: 110}
	if !long.StopHit(94, 100) {
		t.Fatal("long stop must trigger on low touch")
	}
	if long.StopHit(96, 100) {
		t.Fatal("long stop must not trigger above the level")
	}
	if !long.TakeProfitHit(100, 111) {
		t.Fatal("long TP must trigger on high touch")
	}

	short := &Position{Side: SideShort, StopLoss: 105, TakeProfit: 90}
	if !short.StopHit(100, 106) {
		t.Fatal("short stop must trigger on high touch")
	}
	if !short.TakeProfitHit(89, 100) {
		t.Fatal("short TP must trigger on low touch")
	}

	unset := &Position{Side: SideLong}
	if unset.StopHit(0, 1000) || unset.TakeProfitHit(0, 1000) {
		t.Fatal("zero levels must never trigger")
	}
}

// Fee conservation: initial = final balance + total fees +/- price PnL.
func TestFeeConservation(t *testing.T) {
	pf := New(10000)
	var fees, gross float64

	for i, exit := range []float64{105, 97, 102} {
		pos, err := pf.Open("BTCUSDT", SideLong, 100, int64(i*1000), 10, 0, 0, 1.5)
		if err != nil {
			t.Fatal(err)
		}
		trade := pf.Close(pos, exit, int64(i*1000+500), 1.5, ReasonSignalReversal)
		fees += trade.Fees
		gross += (exit - 100) * 10
	}

	if math.Abs(pf.Balance-(10000+gross-fees)) > 1e-9 {
		t.Fatalf("conservation violated: balance %v, want %v", pf.Balance, 10000+gross-fees)
	}
}
