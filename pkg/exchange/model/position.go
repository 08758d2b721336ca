package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a team's signed holding in one symbol. AveragePrice is
// meaningful only while Quantity is non-zero.
type Position struct {
	TeamID       string
	Symbol       string
	Quantity     int64
	AveragePrice decimal.Decimal
	RealizedPnL  decimal.Decimal
	UpdatedAt    time.Time
}
