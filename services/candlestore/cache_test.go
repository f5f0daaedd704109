package candlestore

import "testing"

func TestCandleKeyShape(t *testing.T) {
	got := candleKey("BTCUSDT", "5m", 1000, 2000)
	want := "marketsim:candles:BTCUSDT:5m:1000:2000"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}
