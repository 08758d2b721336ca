package exchange

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradefloor/pkg/exchange/model"
	"tradefloor/pkg/marketdata"
	"tradefloor/pkg/orderbook"
	"tradefloor/pkg/position"
)

// lane is one symbol's single-writer execution lane: every mutating call for
// the symbol serializes on mu, so book invariants never race. Lanes for
// different symbols run independently.
type lane struct {
	mu     sync.Mutex
	book   *orderbook.Book
	state  *model.SymbolState
	orders map[string]*model.Order // resting orders by id
}

// SubmitResult carries everything a submit mutated, as copies, so the caller
// can persist without racing the lane.
type SubmitResult struct {
	Order     model.Order
	Trades    []*model.Trade
	Orders    []model.Order
	Positions []model.Position
}

// SettleResult reports the bulk cancel and the closed positions.
type SettleResult struct {
	State     model.SymbolState
	Orders    []model.Order
	Positions []model.Position
}

// Manager owns every symbol's book and state and is the only component
// holding more than one book. It wires matching output into the position
// tracker and the market-data feed.
type Manager struct {
	mu       sync.RWMutex
	lanes    map[string]*lane
	symbolOf map[string]string // resting order id -> symbol

	tracker *position.Tracker
	feed    *marketdata.Feed
	logger  *zap.SugaredLogger
}

func NewManager(tracker *position.Tracker, feed *marketdata.Feed) *Manager {
	return &Manager{
		lanes:    make(map[string]*lane),
		symbolOf: make(map[string]string),
		tracker:  tracker,
		feed:     feed,
		logger:   zap.S(),
	}
}

func (m *Manager) CreateSymbol(symbol string, tickSize decimal.Decimal, lotSize int64) error {
	if symbol == "" || tickSize.Sign() <= 0 || lotSize <= 0 {
		return fmt.Errorf("%w: bad symbol parameters", ErrValidation)
	}
	// tick sizes finer than the book's fixed-point scale cannot be represented
	if !tickSize.Mul(decimal.NewFromInt(model.PriceScale)).IsInteger() {
		return fmt.Errorf("%w: tick size must be a multiple of %s", ErrValidation, model.TicksToPrice(1))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lanes[symbol]; ok {
		return ErrSymbolExists
	}
	m.lanes[symbol] = &lane{
		book: orderbook.NewBook(symbol),
		state: &model.SymbolState{
			Symbol:   symbol,
			TickSize: tickSize,
			LotSize:  lotSize,
		},
		orders: make(map[string]*model.Order),
	}
	return nil
}

func (m *Manager) DeleteSymbol(symbol string) error {
	m.mu.Lock()
	ln, ok := m.lanes[symbol]
	if !ok {
		m.mu.Unlock()
		return ErrSymbolNotFound
	}
	delete(m.lanes, symbol)
	m.mu.Unlock()

	ln.mu.Lock()
	for id := range ln.orders {
		m.unindexOrder(id)
	}
	ln.orders = make(map[string]*model.Order)
	ln.mu.Unlock()

	m.feed.Remove(symbol)
	return nil
}

// SymbolState returns a copy of the symbol's administrative state.
func (m *Manager) SymbolState(symbol string) (model.SymbolState, error) {
	ln, err := m.lane(symbol)
	if err != nil {
		return model.SymbolState{}, err
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return *ln.state, nil
}

func (m *Manager) Symbols() []model.SymbolState {
	m.mu.RLock()
	lanes := make([]*lane, 0, len(m.lanes))
	for _, ln := range m.lanes {
		lanes = append(lanes, ln)
	}
	m.mu.RUnlock()

	out := make([]model.SymbolState, 0, len(lanes))
	for _, ln := range lanes {
		ln.mu.Lock()
		out = append(out, *ln.state)
		ln.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SubmitOrder runs the order through its symbol's lane: match, apply trades
// to positions, publish market data, report every mutated order back.
func (m *Manager) SubmitOrder(order *model.Order) (*SubmitResult, error) {
	ln, err := m.lane(order.Symbol)
	if err != nil {
		return nil, err
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()

	if ln.state.SettlementActive {
		return nil, ErrSymbolSettled
	}
	if ln.state.TradingHalted {
		return nil, ErrSymbolHalted
	}

	bookOrder := &orderbook.Order{
		ID:     order.ID,
		TeamID: order.TeamID,
		Side:   orderbook.Side(order.Side),
		Qty:    order.Remaining(),
		Seq:    order.Seq,
		Market: order.Type == model.OrderTypeMarket,
	}
	if order.Type == model.OrderTypeLimit {
		bookOrder.Price = order.PriceTicks()
	}

	fills, cancels, _ := ln.book.Submit(bookOrder)

	now := time.Now().UTC()
	ln.orders[order.ID] = order
	m.indexOrder(order.ID, order.Symbol)

	res := &SubmitResult{}
	touched := map[string]*model.Order{order.ID: order}
	positions := map[string]model.Position{}

	for _, f := range fills {
		maker, ok := ln.orders[f.MakerOrderID]
		if !ok {
			m.logger.Errorw("fill for unknown maker", "symbol", order.Symbol, "order_id", f.MakerOrderID)
			continue
		}

		buyerTeam, sellerTeam := f.MakerTeamID, f.TakerTeamID
		if f.TakerSide == orderbook.Buy {
			buyerTeam, sellerTeam = f.TakerTeamID, f.MakerTeamID
		}
		trade := &model.Trade{
			ID:           uuid.NewString(),
			Symbol:       order.Symbol,
			Price:        model.TicksToPrice(f.Price),
			Quantity:     f.Qty,
			MakerOrderID: f.MakerOrderID,
			TakerOrderID: f.TakerOrderID,
			BuyerTeamID:  buyerTeam,
			SellerTeamID: sellerTeam,
			ExecutedAt:   now,
		}
		res.Trades = append(res.Trades, trade)

		order.FilledQuantity += f.Qty
		maker.FilledQuantity += f.Qty
		touched[maker.ID] = maker

		for _, p := range m.tracker.ApplyTrade(trade) {
			positions[p.TeamID+"/"+p.Symbol] = p
		}
	}

	for _, c := range cancels {
		co, ok := ln.orders[c.OrderID]
		if !ok {
			continue
		}
		co.CancelledQuantity += c.Qty
		touched[co.ID] = co
	}

	// a market order never rests: everything unexecuted is cancelled,
	// including quantity burned by self-trade prevention
	if bookOrder.Market {
		order.CancelledQuantity += order.Remaining()
	}

	for _, o := range touched {
		o.RefreshStatus()
		o.UpdatedAt = now
		if !ln.book.Resting(o.ID) {
			delete(ln.orders, o.ID)
			m.unindexOrder(o.ID)
		}
		res.Orders = append(res.Orders, *o)
	}
	sort.Slice(res.Orders, func(i, j int) bool { return res.Orders[i].Seq < res.Orders[j].Seq })
	for _, p := range positions {
		res.Positions = append(res.Positions, p)
	}
	res.Order = *order

	m.publish(ln, res.Trades)
	return res, nil
}

// CancelOrder removes a resting order through its lane. A cancel that loses
// the race against a match fails here with ErrOrderNotFound; the caller maps
// that against its persisted state.
func (m *Manager) CancelOrder(orderID string) (model.Order, error) {
	m.mu.RLock()
	symbol, ok := m.symbolOf[orderID]
	m.mu.RUnlock()
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}

	ln, err := m.lane(symbol)
	if err != nil {
		return model.Order{}, err
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()

	c, err := ln.book.Cancel(orderID)
	if err != nil {
		return model.Order{}, ErrOrderNotFound
	}
	order, ok := ln.orders[orderID]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}

	order.CancelledQuantity += c.Qty
	order.RefreshStatus()
	order.UpdatedAt = time.Now().UTC()
	delete(ln.orders, orderID)
	m.unindexOrder(orderID)

	m.publish(ln, nil)
	return *order, nil
}

// Pause halts one symbol. While halted the whole book is frozen: nothing is
// admitted, so resting orders cannot match either.
func (m *Manager) Pause(symbol string) error {
	return m.setHalted(symbol, true)
}

func (m *Manager) Resume(symbol string) error {
	return m.setHalted(symbol, false)
}

// PauseAll halts every symbol. Lanes transition independently; this is not
// atomic across symbols.
func (m *Manager) PauseAll() {
	for _, s := range m.Symbols() {
		_ = m.setHalted(s.Symbol, true)
	}
}

func (m *Manager) ResumeAll() {
	for _, s := range m.Symbols() {
		_ = m.setHalted(s.Symbol, false)
	}
}

func (m *Manager) setHalted(symbol string, halted bool) error {
	ln, err := m.lane(symbol)
	if err != nil {
		return err
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if ln.state.SettlementActive {
		return ErrSymbolSettled
	}
	ln.state.TradingHalted = halted
	return nil
}

// Settle fixes the symbol's final price, cancels the whole book and closes
// every open position at that price. The symbol rejects all submissions
// afterwards.
func (m *Manager) Settle(symbol string, price decimal.Decimal) (*SettleResult, error) {
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: settlement price must be positive", ErrValidation)
	}
	ln, err := m.lane(symbol)
	if err != nil {
		return nil, err
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()

	if ln.state.SettlementActive {
		return nil, ErrSymbolSettled
	}
	now := time.Now().UTC()
	ln.state.SettlementActive = true
	ln.state.SettlementPrice = price
	ln.state.SettledAt = now
	ln.state.TradingHalted = false

	res := &SettleResult{}
	for _, c := range ln.book.CancelAll(orderbook.CancelReasonSettlement) {
		order, ok := ln.orders[c.OrderID]
		if !ok {
			continue
		}
		order.CancelledQuantity += c.Qty
		order.RefreshStatus()
		order.UpdatedAt = now
		delete(ln.orders, order.ID)
		m.unindexOrder(order.ID)
		res.Orders = append(res.Orders, *order)
	}

	res.Positions = m.tracker.CloseAll(symbol, price)
	res.State = *ln.state

	m.publish(ln, nil)
	return res, nil
}

// RestoreSymbol recreates a symbol's lane from persisted state, halted flag
// and settlement included.
func (m *Manager) RestoreSymbol(state model.SymbolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lanes[state.Symbol]; ok {
		return ErrSymbolExists
	}
	st := state
	m.lanes[state.Symbol] = &lane{
		book:   orderbook.NewBook(state.Symbol),
		state:  &st,
		orders: make(map[string]*model.Order),
	}
	return nil
}

// LoadPositions seeds the tracker from persisted rows at startup.
func (m *Manager) LoadPositions(positions []model.Position) {
	m.tracker.Load(positions)
}

// LoadOpenOrders rebuilds the books from persisted open limit orders, in
// admission order. This is the restart half of the crash-recovery story:
// in-memory state is reconstructed from the last successfully persisted
// orders rather than rolled back on persistence failure.
func (m *Manager) LoadOpenOrders(orders []*model.Order) {
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })

	reloaded := map[string]*lane{}
	for _, order := range orders {
		if order.Type != model.OrderTypeLimit || order.IsTerminal() || order.Remaining() <= 0 {
			continue
		}
		ln, err := m.lane(order.Symbol)
		if err != nil {
			m.logger.Warnw("open order for unknown symbol", "symbol", order.Symbol, "order_id", order.ID)
			continue
		}
		ln.mu.Lock()
		ln.book.Rest(&orderbook.Order{
			ID:     order.ID,
			TeamID: order.TeamID,
			Side:   orderbook.Side(order.Side),
			Price:  order.PriceTicks(),
			Qty:    order.Remaining(),
			Seq:    order.Seq,
		})
		ln.orders[order.ID] = order
		m.indexOrder(order.ID, order.Symbol)
		ln.mu.Unlock()
		reloaded[order.Symbol] = ln
	}

	for _, ln := range reloaded {
		ln.mu.Lock()
		m.publish(ln, nil)
		ln.mu.Unlock()
	}
}

// PositionSnapshot exposes the tracker's read-only view for limit checks.
func (m *Manager) PositionSnapshot(teamID, symbol string) (model.Position, bool) {
	return m.tracker.Snapshot(teamID, symbol)
}

// Positions returns a copy of every team's position.
func (m *Manager) Positions() []model.Position {
	return m.tracker.SnapshotAll()
}

// Depth returns the symbol's aggregated book, bids descending and asks
// ascending, at most n levels per side.
func (m *Manager) Depth(symbol string, n int) (bids, asks []orderbook.Level, err error) {
	ln, err := m.lane(symbol)
	if err != nil {
		return nil, nil, err
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	bids, asks = ln.book.Depth(n)
	return bids, asks, nil
}

// publish must run while holding the lane.
func (m *Manager) publish(ln *lane, trades []*model.Trade) {
	bids, asks := ln.book.Depth(m.feed.DepthLevels())
	m.feed.Publish(ln.book.Symbol(), bids, asks, trades)
}

func (m *Manager) lane(symbol string) (*lane, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ln, ok := m.lanes[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return ln, nil
}

func (m *Manager) indexOrder(orderID, symbol string) {
	m.mu.Lock()
	m.symbolOf[orderID] = symbol
	m.mu.Unlock()
}

func (m *Manager) unindexOrder(orderID string) {
	m.mu.Lock()
	delete(m.symbolOf, orderID)
	m.mu.Unlock()
}
