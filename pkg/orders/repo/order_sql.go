package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tradefloor/pkg/exchange/model"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (r *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *OrderSQLRepo) Save(ctx context.Context, order *model.Order) error {
	return r.dbWithContext(ctx).Save(orderToRow(order)).Error
}

func (r *OrderSQLRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var row OrderRow
	err := r.dbWithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToOrder(&row), nil
}

func (r *OrderSQLRepo) FindOpen(ctx context.Context) ([]*model.Order, error) {
	var rows []OrderRow
	err := r.dbWithContext(ctx).
		Where("status IN ?", []string{string(model.OrderStatusPending), string(model.OrderStatusPartial)}).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*model.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rowToOrder(&rows[i]))
	}
	return orders, nil
}

func (r *OrderSQLRepo) MaxSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := r.dbWithContext(ctx).
		Model(&OrderRow{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	return maxSeq, err
}
