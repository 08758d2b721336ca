package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is immutable once produced by the matching sweep. Price is always the
// maker's resting price.
type Trade struct {
	ID           string
	Symbol       string
	Price        decimal.Decimal
	Quantity     int64
	MakerOrderID string
	TakerOrderID string
	BuyerTeamID  string
	SellerTeamID string
	ExecutedAt   time.Time
}
