package repo

import (
	"time"

	"github.com/shopspring/decimal"

	"tradefloor/pkg/exchange/model"
)

type OrderRow struct {
	ID                string `gorm:"primaryKey"`
	TeamID            string
	Symbol            string
	Side              string
	OrderType         string
	Price             decimal.NullDecimal
	Quantity          int64
	FilledQuantity    int64
	CancelledQuantity int64
	Seq               int64
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (OrderRow) TableName() string { return "orders" }

type TradeRow struct {
	ID           string `gorm:"primaryKey"`
	Symbol       string
	Price        decimal.Decimal
	Quantity     int64
	MakerOrderID string
	TakerOrderID string
	BuyerTeamID  string
	SellerTeamID string
	ExecutedAt   time.Time
}

func (TradeRow) TableName() string { return "trades" }

type PositionRow struct {
	TeamID       string `gorm:"primaryKey"`
	Symbol       string `gorm:"primaryKey"`
	Quantity     int64
	AveragePrice decimal.NullDecimal
	RealizedPnl  decimal.Decimal
	UpdatedAt    time.Time
}

func (PositionRow) TableName() string { return "positions" }

type PositionLimitRow struct {
	Symbol         string `gorm:"primaryKey"`
	MaxPosition    int64
	MaxOrderSize   int64
	AppliesToAdmin bool
}

func (PositionLimitRow) TableName() string { return "position_limits" }

type SymbolRow struct {
	Symbol           string `gorm:"primaryKey"`
	TickSize         decimal.Decimal
	LotSize          int64
	TradingHalted    bool
	SettlementActive bool
	SettlementPrice  decimal.NullDecimal
	SettledAt        *time.Time
}

func (SymbolRow) TableName() string { return "symbols" }

func orderToRow(o *model.Order) *OrderRow {
	row := &OrderRow{
		ID:                o.ID,
		TeamID:            o.TeamID,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		OrderType:         string(o.Type),
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Seq:               o.Seq,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if o.Type == model.OrderTypeLimit {
		row.Price = decimal.NullDecimal{Decimal: o.Price, Valid: true}
	}
	return row
}

func rowToOrder(r *OrderRow) *model.Order {
	return &model.Order{
		ID:                r.ID,
		TeamID:            r.TeamID,
		Symbol:            r.Symbol,
		Side:              model.OrderSide(r.Side),
		Type:              model.OrderType(r.OrderType),
		Price:             r.Price.Decimal,
		Quantity:          r.Quantity,
		FilledQuantity:    r.FilledQuantity,
		CancelledQuantity: r.CancelledQuantity,
		Seq:               r.Seq,
		Status:            model.OrderStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func tradeToRow(t *model.Trade) *TradeRow {
	return &TradeRow{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Price:        t.Price,
		Quantity:     t.Quantity,
		MakerOrderID: t.MakerOrderID,
		TakerOrderID: t.TakerOrderID,
		BuyerTeamID:  t.BuyerTeamID,
		SellerTeamID: t.SellerTeamID,
		ExecutedAt:   t.ExecutedAt,
	}
}

func positionToRow(p *model.Position) *PositionRow {
	row := &PositionRow{
		TeamID:      p.TeamID,
		Symbol:      p.Symbol,
		Quantity:    p.Quantity,
		RealizedPnl: p.RealizedPnL,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Quantity != 0 {
		row.AveragePrice = decimal.NullDecimal{Decimal: p.AveragePrice, Valid: true}
	}
	return row
}

func rowToPosition(r *PositionRow) model.Position {
	return model.Position{
		TeamID:       r.TeamID,
		Symbol:       r.Symbol,
		Quantity:     r.Quantity,
		AveragePrice: r.AveragePrice.Decimal,
		RealizedPnL:  r.RealizedPnl,
		UpdatedAt:    r.UpdatedAt,
	}
}

func limitToRow(l *model.PositionLimit) *PositionLimitRow {
	return &PositionLimitRow{
		Symbol:         l.Symbol,
		MaxPosition:    l.MaxPosition,
		MaxOrderSize:   l.MaxOrderSize,
		AppliesToAdmin: l.AppliesToAdmin,
	}
}

func rowToLimit(r *PositionLimitRow) model.PositionLimit {
	return model.PositionLimit{
		Symbol:         r.Symbol,
		MaxPosition:    r.MaxPosition,
		MaxOrderSize:   r.MaxOrderSize,
		AppliesToAdmin: r.AppliesToAdmin,
	}
}

func symbolToRow(s *model.SymbolState) *SymbolRow {
	row := &SymbolRow{
		Symbol:           s.Symbol,
		TickSize:         s.TickSize,
		LotSize:          s.LotSize,
		TradingHalted:    s.TradingHalted,
		SettlementActive: s.SettlementActive,
	}
	if s.SettlementActive {
		row.SettlementPrice = decimal.NullDecimal{Decimal: s.SettlementPrice, Valid: true}
		settledAt := s.SettledAt
		row.SettledAt = &settledAt
	}
	return row
}

func rowToSymbol(r *SymbolRow) model.SymbolState {
	s := model.SymbolState{
		Symbol:           r.Symbol,
		TickSize:         r.TickSize,
		LotSize:          r.LotSize,
		TradingHalted:    r.TradingHalted,
		SettlementActive: r.SettlementActive,
		SettlementPrice:  r.SettlementPrice.Decimal,
	}
	if r.SettledAt != nil {
		s.SettledAt = *r.SettledAt
	}
	return s
}
