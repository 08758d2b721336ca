package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradefloor/pkg/exchange"
	"tradefloor/pkg/exchange/model"
	"tradefloor/pkg/orders/repo"
)

// PlaceOrderInput is the validated boundary of the exchange: everything a
// team sends arrives here first.
type PlaceOrderInput struct {
	TeamID   string
	Symbol   string
	Side     model.OrderSide
	Type     model.OrderType
	Price    decimal.Decimal
	Quantity int64
	IsAdmin  bool
}

// Service validates incoming requests, runs them through the exchange manager
// and persists the outcome. Matching never waits on the database: persistence
// happens after the lane releases, and a write failure surfaces as
// ErrPersistence while the in-memory books stay authoritative until restart
// replay.
type Service struct {
	manager *exchange.Manager
	repo    repo.IRepo
	logger  *zap.SugaredLogger

	seq atomic.Int64

	limitMu sync.RWMutex
	limits  map[string]model.PositionLimit
}

func NewService(manager *exchange.Manager, r repo.IRepo) *Service {
	return &Service{
		manager: manager,
		repo:    r,
		logger:  zap.S(),
		limits:  make(map[string]model.PositionLimit),
	}
}

// PlaceOrder admits one order: validate, assign id and sequence, match,
// persist every order, trade and position the match touched.
func (s *Service) PlaceOrder(ctx context.Context, in *PlaceOrderInput) (*exchange.SubmitResult, error) {
	state, err := s.manager.SymbolState(in.Symbol)
	if err != nil {
		return nil, err
	}
	if err := s.validate(in, &state); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:        uuid.NewString(),
		TeamID:    in.TeamID,
		Symbol:    in.Symbol,
		Side:      in.Side,
		Type:      in.Type,
		Quantity:  in.Quantity,
		Seq:       s.seq.Add(1),
		Status:    model.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Type == model.OrderTypeLimit {
		order.Price = in.Price
	}

	res, err := s.manager.SubmitOrder(order)
	if err != nil {
		return nil, err
	}

	if err := s.persistSubmit(ctx, res); err != nil {
		s.logger.Errorw("persist submit", "order_id", order.ID, "err", err)
		return res, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return res, nil
}

// CancelOrder removes the caller's resting order. Admins may cancel any
// team's order.
func (s *Service) CancelOrder(ctx context.Context, teamID, orderID string, isAdmin bool) (*model.Order, error) {
	stored, err := s.repo.Order().FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	if stored == nil {
		return nil, exchange.ErrOrderNotFound
	}
	if stored.TeamID != teamID && !isAdmin {
		return nil, exchange.ErrForbidden
	}
	if !stored.CanCancel() {
		return nil, exchange.ErrOrderNotCancellable
	}

	cancelled, err := s.manager.CancelOrder(orderID)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		// the order was open in storage but gone from the book: it filled or
		// cancelled in the race window
		return nil, exchange.ErrOrderNotCancellable
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.Order().Save(ctx, &cancelled); err != nil {
		s.logger.Errorw("persist cancel", "order_id", orderID, "err", err)
		return &cancelled, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return &cancelled, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.repo.Order().FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	if order == nil {
		return nil, exchange.ErrOrderNotFound
	}
	return order, nil
}

// SetPositionLimit installs or replaces the symbol's limit and persists it.
// A zero MaxPosition or MaxOrderSize disables that bound.
func (s *Service) SetPositionLimit(ctx context.Context, limit model.PositionLimit) error {
	s.limitMu.Lock()
	s.limits[limit.Symbol] = limit
	s.limitMu.Unlock()

	if err := s.repo.PositionLimit().Save(ctx, &limit); err != nil {
		s.logger.Errorw("persist position limit", "symbol", limit.Symbol, "err", err)
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return nil
}

func (s *Service) PositionLimit(symbol string) (model.PositionLimit, bool) {
	s.limitMu.RLock()
	defer s.limitMu.RUnlock()
	l, ok := s.limits[symbol]
	return l, ok
}

// CreateSymbol registers a new tradable symbol and persists it.
func (s *Service) CreateSymbol(ctx context.Context, symbol string, tickSize decimal.Decimal, lotSize int64) error {
	if err := s.manager.CreateSymbol(symbol, tickSize, lotSize); err != nil {
		return err
	}
	state, err := s.manager.SymbolState(symbol)
	if err != nil {
		return err
	}
	if err := s.repo.Symbol().Save(ctx, &state); err != nil {
		s.logger.Errorw("persist symbol", "symbol", symbol, "err", err)
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return nil
}

// DeleteSymbol removes a symbol and its book entirely. Persisted orders and
// trades stay for the audit trail.
func (s *Service) DeleteSymbol(ctx context.Context, symbol string) error {
	if err := s.manager.DeleteSymbol(symbol); err != nil {
		return err
	}
	if err := s.repo.Symbol().Delete(ctx, symbol); err != nil {
		s.logger.Errorw("delete symbol", "symbol", symbol, "err", err)
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return nil
}

func (s *Service) PauseTrading(ctx context.Context, symbol string) error {
	if err := s.manager.Pause(symbol); err != nil {
		return err
	}
	return s.persistSymbol(ctx, symbol)
}

func (s *Service) ResumeTrading(ctx context.Context, symbol string) error {
	if err := s.manager.Resume(symbol); err != nil {
		return err
	}
	return s.persistSymbol(ctx, symbol)
}

func (s *Service) PauseAll(ctx context.Context) error {
	s.manager.PauseAll()
	return s.persistAllSymbols(ctx)
}

func (s *Service) ResumeAll(ctx context.Context) error {
	s.manager.ResumeAll()
	return s.persistAllSymbols(ctx)
}

// Settle fixes the symbol's settlement price, cancels its book and closes
// every position, then persists the lot.
func (s *Service) Settle(ctx context.Context, symbol string, price decimal.Decimal) (*exchange.SettleResult, error) {
	res, err := s.manager.Settle(symbol, price)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Symbol().Save(ctx, &res.State); err != nil {
		s.logger.Errorw("persist settlement state", "symbol", symbol, "err", err)
		return res, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	for i := range res.Orders {
		if err := s.repo.Order().Save(ctx, &res.Orders[i]); err != nil {
			s.logger.Errorw("persist settlement cancel", "order_id", res.Orders[i].ID, "err", err)
			return res, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
		}
	}
	for i := range res.Positions {
		if err := s.repo.Position().Upsert(ctx, &res.Positions[i]); err != nil {
			s.logger.Errorw("persist settlement position", "team_id", res.Positions[i].TeamID, "err", err)
			return res, fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
		}
	}
	return res, nil
}

// Recover rebuilds the in-memory exchange from storage: symbols first, then
// positions, then open orders replayed in admission order. The order sequence
// resumes past the highest persisted value.
func (s *Service) Recover(ctx context.Context) error {
	symbols, err := s.repo.Symbol().FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	for i := range symbols {
		if err := s.manager.RestoreSymbol(symbols[i]); err != nil {
			return err
		}
	}

	positions, err := s.repo.Position().FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	s.manager.LoadPositions(positions)

	limits, err := s.repo.PositionLimit().FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	s.limitMu.Lock()
	for _, l := range limits {
		s.limits[l.Symbol] = l
	}
	s.limitMu.Unlock()

	open, err := s.repo.Order().FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	s.manager.LoadOpenOrders(open)

	maxSeq, err := s.repo.Order().MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	s.seq.Store(maxSeq)

	s.logger.Infow("exchange recovered", "symbols", len(symbols), "open_orders", len(open), "seq", maxSeq)
	return nil
}

func (s *Service) validate(in *PlaceOrderInput, state *model.SymbolState) error {
	if state.SettlementActive {
		return exchange.ErrSymbolSettled
	}
	if state.TradingHalted {
		return exchange.ErrSymbolHalted
	}
	if in.TeamID == "" {
		return fmt.Errorf("%w: team id required", exchange.ErrValidation)
	}
	if in.Side != model.OrderSideBuy && in.Side != model.OrderSideSell {
		return fmt.Errorf("%w: side must be buy or sell", exchange.ErrValidation)
	}
	if in.Type != model.OrderTypeLimit && in.Type != model.OrderTypeMarket {
		return fmt.Errorf("%w: type must be limit or market", exchange.ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", exchange.ErrValidation)
	}
	if in.Quantity%state.LotSize != 0 {
		return fmt.Errorf("%w: quantity must be a multiple of lot size %d", exchange.ErrValidation, state.LotSize)
	}
	if in.Type == model.OrderTypeLimit {
		if in.Price.Sign() <= 0 {
			return fmt.Errorf("%w: limit price must be positive", exchange.ErrValidation)
		}
		if !in.Price.Mod(state.TickSize).IsZero() {
			return fmt.Errorf("%w: price must be a multiple of tick size %s", exchange.ErrValidation, state.TickSize)
		}
	}
	return s.checkLimits(in)
}

// checkLimits rejects orders that would breach the symbol's limits; it never
// trims them down to fit.
func (s *Service) checkLimits(in *PlaceOrderInput) error {
	limit, ok := s.PositionLimit(in.Symbol)
	if !ok {
		return nil
	}
	if in.IsAdmin && !limit.AppliesToAdmin {
		return nil
	}

	if limit.MaxOrderSize > 0 && in.Quantity > limit.MaxOrderSize {
		return fmt.Errorf("%w: order size %d exceeds max %d", exchange.ErrLimitExceeded, in.Quantity, limit.MaxOrderSize)
	}

	if limit.MaxPosition > 0 {
		pos, _ := s.manager.PositionSnapshot(in.TeamID, in.Symbol)
		projected := pos.Quantity + in.Quantity
		if in.Side == model.OrderSideSell {
			projected = pos.Quantity - in.Quantity
		}
		if abs(projected) > limit.MaxPosition {
			return fmt.Errorf("%w: position would reach %d, max %d", exchange.ErrLimitExceeded, projected, limit.MaxPosition)
		}
	}
	return nil
}

func (s *Service) persistSubmit(ctx context.Context, res *exchange.SubmitResult) error {
	for i := range res.Orders {
		if err := s.repo.Order().Save(ctx, &res.Orders[i]); err != nil {
			return err
		}
	}
	if err := s.repo.Trade().BulkCreate(ctx, res.Trades); err != nil {
		return err
	}
	for i := range res.Positions {
		if err := s.repo.Position().Upsert(ctx, &res.Positions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) persistSymbol(ctx context.Context, symbol string) error {
	state, err := s.manager.SymbolState(symbol)
	if err != nil {
		return err
	}
	if err := s.repo.Symbol().Save(ctx, &state); err != nil {
		s.logger.Errorw("persist symbol state", "symbol", symbol, "err", err)
		return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
	}
	return nil
}

func (s *Service) persistAllSymbols(ctx context.Context) error {
	states := s.manager.Symbols()
	for i := range states {
		if err := s.repo.Symbol().Save(ctx, &states[i]); err != nil {
			s.logger.Errorw("persist symbol state", "symbol", states[i].Symbol, "err", err)
			return fmt.Errorf("%w: %v", exchange.ErrPersistence, err)
		}
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
