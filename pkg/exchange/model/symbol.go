package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolState is owned by the exchange manager; nothing else mutates it.
type SymbolState struct {
	Symbol   string
	TickSize decimal.Decimal
	LotSize  int64

	TradingHalted    bool
	SettlementActive bool
	SettlementPrice  decimal.Decimal
	SettledAt        time.Time
}

// PositionLimit is administrative input to order validation.
type PositionLimit struct {
	Symbol         string
	MaxPosition    int64
	MaxOrderSize   int64
	AppliesToAdmin bool
}
