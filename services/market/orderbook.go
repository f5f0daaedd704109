package market

// BookLevel is one price level of an order-book snapshot.
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook is a point-in-time depth snapshot. Bids are sorted descending by
// price, asks ascending; the execution model walks the side matching the
// order direction.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// Mid returns the mid-price between best bid and best ask, or 0 if either
// side is empty.
func (ob *OrderBook) Mid() float64 {
	if ob == nil || len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return (ob.Bids[0].Price + ob.Asks[0].Price) / 2
}
