package orderbook

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order is a book-side view of an order: remaining quantity only, price in
// integer tick space. Market orders carry Market=true and never rest.
type Order struct {
	ID     string
	TeamID string
	Side   Side
	Price  int64
	Qty    int64
	Seq    int64
	Market bool
}

func (o *Order) crosses(restingPrice int64) bool {
	if o.Market {
		return true
	}
	if o.Side == Buy {
		return o.Price >= restingPrice
	}
	return o.Price <= restingPrice
}
