package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale converts decimal prices to the integer tick space the book
// matches in. Six decimal places, same precision the price columns carry.
const PriceScale = 1_000_000

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID     string
	TeamID string
	Symbol string
	Side   OrderSide
	Type   OrderType

	// Price is meaningful for limit orders only. Market orders carry zero and
	// never rest in the book.
	Price decimal.Decimal

	Quantity       int64
	FilledQuantity int64
	// CancelledQuantity covers removed-without-trading quantity: user cancels,
	// self-trade prevention, settlement, unfilled market remainders.
	CancelledQuantity int64

	// Seq is assigned once at admission and breaks price ties FIFO.
	Seq    int64
	Status OrderStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity - o.CancelledQuantity
}

// RefreshStatus derives the status from the fill and cancel counters.
// Terminal statuses are never left again.
func (o *Order) RefreshStatus() {
	if o.IsTerminal() {
		return
	}
	switch {
	case o.Remaining() == 0 && o.CancelledQuantity > 0:
		o.Status = OrderStatusCancelled
	case o.Remaining() == 0:
		o.Status = OrderStatusFilled
	case o.FilledQuantity > 0:
		o.Status = OrderStatusPartial
	default:
		o.Status = OrderStatusPending
	}
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

func (o *Order) CanCancel() bool {
	return !o.IsTerminal()
}

// PriceTicks returns the limit price in integer tick space.
func (o *Order) PriceTicks() int64 {
	return PriceToTicks(o.Price)
}

func PriceToTicks(p decimal.Decimal) int64 {
	return p.Mul(decimal.NewFromInt(PriceScale)).IntPart()
}

func TicksToPrice(t int64) decimal.Decimal {
	return decimal.New(t, 0).Div(decimal.NewFromInt(PriceScale))
}
