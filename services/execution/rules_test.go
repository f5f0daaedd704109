package execution

import "testing"

func TestRulesQuantizePriceAndQuantity(t *testing.T) {
	rules := DefaultRules()

	price, qty, ok := rules.Apply(100.123456, 0.123456789)
	if !ok {
		t.Fatal("order above min notional must pass")
	}
	if price != 100.12 {
		t.Fatalf("price tick rounding: want 100.12, got %v", price)
	}
	if qty != 0.12346 {
		t.Fatalf("lot rounding: want 0.12346, got %v", qty)
	}
}

func TestRulesRejectBelowMinNotional(t *testing.T) {
	rules := DefaultRules()
	_, _, ok := rules.Apply(100, 0.00005) // $0.005 notional
	if ok {
		t.Fatal("dust order must be rejected")
	}
}

func TestRulesZeroIncrementsPassThrough(t *testing.T) {
	var rules Rules // zero decimals disable each constraint
	price, qty, ok := rules.Apply(123.456, 7.89)
	if !ok || price != 123.456 || qty != 7.89 {
		t.Fatalf("unconstrained rules must pass values through: %v %v %v", price, qty, ok)
	}
}
