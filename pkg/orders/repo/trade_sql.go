package repo

import (
	"context"

	"gorm.io/gorm"

	"tradefloor/pkg/exchange/model"
)

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (r *TradeSQLRepo) BulkCreate(ctx context.Context, trades []*model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]*TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, tradeToRow(t))
	}
	return r.db.WithContext(ctx).Create(rows).Error
}
