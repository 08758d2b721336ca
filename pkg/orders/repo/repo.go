package repo

import (
	"gorm.io/gorm"
)

type Repo struct {
	exchangeDB *gorm.DB
}

func NewRepo(exchangeDB *gorm.DB) IRepo {
	return &Repo{
		exchangeDB: exchangeDB,
	}
}

func (r *Repo) Order() IOrder {
	return NewOrderSQLRepo(r.exchangeDB)
}

func (r *Repo) Trade() ITrade {
	return NewTradeSQLRepo(r.exchangeDB)
}

func (r *Repo) Position() IPosition {
	return NewPositionSQLRepo(r.exchangeDB)
}

func (r *Repo) PositionLimit() IPositionLimit {
	return NewPositionLimitSQLRepo(r.exchangeDB)
}

func (r *Repo) Symbol() ISymbol {
	return NewSymbolSQLRepo(r.exchangeDB)
}
