package repo

import (
	"context"

	"tradefloor/pkg/exchange/model"
)

type IOrder interface {
	Save(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindOpen(ctx context.Context) ([]*model.Order, error)
	MaxSeq(ctx context.Context) (int64, error)
}

type ITrade interface {
	BulkCreate(ctx context.Context, trades []*model.Trade) error
}

type IPosition interface {
	Upsert(ctx context.Context, position *model.Position) error
	FindAll(ctx context.Context) ([]model.Position, error)
}

type IPositionLimit interface {
	Save(ctx context.Context, limit *model.PositionLimit) error
	FindAll(ctx context.Context) ([]model.PositionLimit, error)
}

type ISymbol interface {
	Save(ctx context.Context, state *model.SymbolState) error
	Delete(ctx context.Context, symbol string) error
	FindAll(ctx context.Context) ([]model.SymbolState, error)
}

type IRepo interface {
	Order() IOrder
	Trade() ITrade
	Position() IPosition
	PositionLimit() IPositionLimit
	Symbol() ISymbol
}
