package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradefloor/pkg/exchange/model"
)

type PositionSQLRepo struct {
	db *gorm.DB
}

func NewPositionSQLRepo(db *gorm.DB) *PositionSQLRepo {
	return &PositionSQLRepo{
		db: db,
	}
}

func (r *PositionSQLRepo) Upsert(ctx context.Context, position *model.Position) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(positionToRow(position)).Error
}

func (r *PositionSQLRepo) FindAll(ctx context.Context) ([]model.Position, error) {
	var rows []PositionRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(rows))
	for i := range rows {
		positions = append(positions, rowToPosition(&rows[i]))
	}
	return positions, nil
}
