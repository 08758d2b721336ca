package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradefloor/pkg/exchange/model"
)

type PositionLimitSQLRepo struct {
	db *gorm.DB
}

func NewPositionLimitSQLRepo(db *gorm.DB) *PositionLimitSQLRepo {
	return &PositionLimitSQLRepo{
		db: db,
	}
}

func (r *PositionLimitSQLRepo) Save(ctx context.Context, limit *model.PositionLimit) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(limitToRow(limit)).Error
}

func (r *PositionLimitSQLRepo) FindAll(ctx context.Context) ([]model.PositionLimit, error) {
	var rows []PositionLimitRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	limits := make([]model.PositionLimit, 0, len(rows))
	for i := range rows {
		limits = append(limits, rowToLimit(&rows[i]))
	}
	return limits, nil
}
