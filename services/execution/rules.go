package execution

import "github.com/shopspring/decimal"

// Rules captures exchange trading constraints used to round orders to
// venue-legal price/quantity increments before simulating the fill.
type Rules struct {
	TickSize    decimal.Decimal // minimum price increment
	LotSize     decimal.Decimal // minimum quantity increment
	MinNotional decimal.Decimal // minimum order value
}

// DefaultRules are Binance-like BTCUSDT constraints.
func DefaultRules() Rules {
	return Rules{
		TickSize:    decimal.NewFromFloat(0.01),
		LotSize:     decimal.NewFromFloat(0.00001),
		MinNotional: decimal.NewFromFloat(10.0),
	}
}

// Apply quantizes price to the tick size and quantity to the lot size, then
// checks the minimum notional. Returns the rounded values and whether the
// order remains submittable.
func (r Rules) Apply(price, quantity float64) (outPrice, outQty float64, ok bool) {
	p := decimal.NewFromFloat(price)
	q := decimal.NewFromFloat(quantity)

	if r.TickSize.IsPositive() {
		p = p.Div(r.TickSize).Round(0).Mul(r.TickSize)
	}
	if r.LotSize.IsPositive() {
		q = q.Div(r.LotSize).Round(0).Mul(r.LotSize)
	}

	notional := p.Mul(q)
	if r.MinNotional.IsPositive() && notional.LessThan(r.MinNotional) {
		return p.InexactFloat64(), q.InexactFloat64(), false
	}
	return p.InexactFloat64(), q.InexactFloat64(), true
}
