package repo

import (
	"context"

	"gorm.io/gorm"

	"tradefloor/pkg/exchange/model"
)

type SymbolSQLRepo struct {
	db *gorm.DB
}

func NewSymbolSQLRepo(db *gorm.DB) *SymbolSQLRepo {
	return &SymbolSQLRepo{
		db: db,
	}
}

func (r *SymbolSQLRepo) Save(ctx context.Context, state *model.SymbolState) error {
	return r.db.WithContext(ctx).Save(symbolToRow(state)).Error
}

func (r *SymbolSQLRepo) Delete(ctx context.Context, symbol string) error {
	return r.db.WithContext(ctx).Delete(&SymbolRow{}, "symbol = ?", symbol).Error
}

func (r *SymbolSQLRepo) FindAll(ctx context.Context) ([]model.SymbolState, error) {
	var rows []SymbolRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	symbols := make([]model.SymbolState, 0, len(rows))
	for i := range rows {
		symbols = append(symbols, rowToSymbol(&rows[i]))
	}
	return symbols, nil
}
