package position

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradefloor/pkg/exchange/model"
)

type key struct {
	teamID string
	symbol string
}

// Tracker holds every team's signed position and cost basis. Positions are
// mutated only through ApplyTrade and CloseAll; callers on different symbol
// lanes share one tracker, so it carries its own lock.
type Tracker struct {
	mu        sync.RWMutex
	positions map[key]*model.Position
}

func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[key]*model.Position),
	}
}

// ApplyTrade updates the buyer's and seller's positions and returns copies of
// both for persistence.
func (t *Tracker) ApplyTrade(trade *model.Trade) []model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	buyer := t.apply(trade.BuyerTeamID, trade.Symbol, model.OrderSideBuy, trade.Quantity, trade.Price)
	seller := t.apply(trade.SellerTeamID, trade.Symbol, model.OrderSideSell, trade.Quantity, trade.Price)
	return []model.Position{buyer, seller}
}

func (t *Tracker) apply(teamID, symbol string, side model.OrderSide, qty int64, price decimal.Decimal) model.Position {
	pos := t.getOrCreate(teamID, symbol)
	fillQty := decimal.NewFromInt(qty)

	if side == model.OrderSideBuy {
		if pos.Quantity >= 0 {
			// same direction: weighted-average cost
			if pos.Quantity == 0 {
				pos.AveragePrice = price
			} else {
				held := decimal.NewFromInt(pos.Quantity)
				pos.AveragePrice = pos.AveragePrice.Mul(held).Add(price.Mul(fillQty)).Div(held.Add(fillQty))
			}
			pos.Quantity += qty
		} else {
			cover := min(qty, -pos.Quantity)
			pos.RealizedPnL = pos.RealizedPnL.Add(pos.AveragePrice.Sub(price).Mul(decimal.NewFromInt(cover)))
			pos.Quantity += cover
			if pos.Quantity == 0 {
				pos.AveragePrice = decimal.Zero
			}
			if remaining := qty - cover; remaining > 0 {
				// sign flip: remainder opens a long at the trade price
				pos.AveragePrice = price
				pos.Quantity = remaining
			}
		}
	} else {
		if pos.Quantity <= 0 {
			if pos.Quantity == 0 {
				pos.AveragePrice = price
			} else {
				held := decimal.NewFromInt(-pos.Quantity)
				pos.AveragePrice = pos.AveragePrice.Mul(held).Add(price.Mul(fillQty)).Div(held.Add(fillQty))
			}
			pos.Quantity -= qty
		} else {
			sold := min(qty, pos.Quantity)
			pos.RealizedPnL = pos.RealizedPnL.Add(price.Sub(pos.AveragePrice).Mul(decimal.NewFromInt(sold)))
			pos.Quantity -= sold
			if pos.Quantity == 0 {
				pos.AveragePrice = decimal.Zero
			}
			if remaining := qty - sold; remaining > 0 {
				// sign flip: remainder opens a short at the trade price
				pos.AveragePrice = price
				pos.Quantity = -remaining
			}
		}
	}

	pos.UpdatedAt = time.Now().UTC()
	return *pos
}

// CloseAll realizes final P&L for every open position on the symbol at the
// settlement price and flattens them. Returns copies of the closed positions.
func (t *Tracker) CloseAll(symbol string, price decimal.Decimal) []model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closed []model.Position
	for k, pos := range t.positions {
		if k.symbol != symbol || pos.Quantity == 0 {
			continue
		}
		held := decimal.NewFromInt(pos.Quantity)
		pos.RealizedPnL = pos.RealizedPnL.Add(price.Sub(pos.AveragePrice).Mul(held))
		pos.Quantity = 0
		pos.AveragePrice = decimal.Zero
		pos.UpdatedAt = time.Now().UTC()
		closed = append(closed, *pos)
	}
	return closed
}

// Snapshot returns a read-only copy of one team's position.
func (t *Tracker) Snapshot(teamID, symbol string) (model.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[key{teamID: teamID, symbol: symbol}]
	if !ok {
		return model.Position{TeamID: teamID, Symbol: symbol}, false
	}
	return *pos, true
}

// SnapshotAll returns copies of every tracked position.
func (t *Tracker) SnapshotAll() []model.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Position, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, *pos)
	}
	return out
}

// Load seeds the tracker from persisted positions at startup.
func (t *Tracker) Load(positions []model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range positions {
		cp := p
		t.positions[key{teamID: p.TeamID, symbol: p.Symbol}] = &cp
	}
}

func (t *Tracker) getOrCreate(teamID, symbol string) *model.Position {
	k := key{teamID: teamID, symbol: symbol}
	pos, ok := t.positions[k]
	if !ok {
		pos = &model.Position{
			TeamID:       teamID,
			Symbol:       symbol,
			AveragePrice: decimal.Zero,
			RealizedPnL:  decimal.Zero,
		}
		t.positions[k] = pos
	}
	return pos
}
