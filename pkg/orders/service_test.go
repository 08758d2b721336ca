package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradefloor/pkg/exchange"
	"tradefloor/pkg/exchange/model"
	"tradefloor/pkg/marketdata"
	"tradefloor/pkg/orders/repo"
	"tradefloor/pkg/position"
)

// fakeRepo keeps everything in maps so service tests run without a database.
type fakeRepo struct {
	mu        sync.Mutex
	orders    map[string]model.Order
	trades    []*model.Trade
	positions map[string]model.Position
	limits    map[string]model.PositionLimit
	symbols   map[string]model.SymbolState

	failOrderSave bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
		limits:    make(map[string]model.PositionLimit),
		symbols:   make(map[string]model.SymbolState),
	}
}

func (f *fakeRepo) Order() repo.IOrder       { return &fakeOrderRepo{f} }
func (f *fakeRepo) Trade() repo.ITrade       { return &fakeTradeRepo{f} }
func (f *fakeRepo) Position() repo.IPosition { return &fakePositionRepo{f} }
func (f *fakeRepo) Symbol() repo.ISymbol     { return &fakeSymbolRepo{f} }

func (f *fakeRepo) PositionLimit() repo.IPositionLimit { return &fakeLimitRepo{f} }

type fakeLimitRepo struct{ f *fakeRepo }

func (r *fakeLimitRepo) Save(ctx context.Context, limit *model.PositionLimit) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.limits[limit.Symbol] = *limit
	return nil
}

func (r *fakeLimitRepo) FindAll(ctx context.Context) ([]model.PositionLimit, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []model.PositionLimit
	for _, l := range r.f.limits {
		out = append(out, l)
	}
	return out, nil
}

type fakeOrderRepo struct{ f *fakeRepo }

func (r *fakeOrderRepo) Save(ctx context.Context, order *model.Order) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.failOrderSave {
		return errors.New("db down")
	}
	r.f.orders[order.ID] = *order
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	o, ok := r.f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := o
	return &cp, nil
}

func (r *fakeOrderRepo) FindOpen(ctx context.Context) ([]*model.Order, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*model.Order
	for _, o := range r.f.orders {
		if !o.IsTerminal() {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) MaxSeq(ctx context.Context) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var maxSeq int64
	for _, o := range r.f.orders {
		if o.Seq > maxSeq {
			maxSeq = o.Seq
		}
	}
	return maxSeq, nil
}

type fakeTradeRepo struct{ f *fakeRepo }

func (r *fakeTradeRepo) BulkCreate(ctx context.Context, trades []*model.Trade) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.trades = append(r.f.trades, trades...)
	return nil
}

type fakePositionRepo struct{ f *fakeRepo }

func (r *fakePositionRepo) Upsert(ctx context.Context, position *model.Position) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.positions[position.TeamID+"/"+position.Symbol] = *position
	return nil
}

func (r *fakePositionRepo) FindAll(ctx context.Context) ([]model.Position, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []model.Position
	for _, p := range r.f.positions {
		out = append(out, p)
	}
	return out, nil
}

type fakeSymbolRepo struct{ f *fakeRepo }

func (r *fakeSymbolRepo) Save(ctx context.Context, state *model.SymbolState) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.symbols[state.Symbol] = *state
	return nil
}

func (r *fakeSymbolRepo) Delete(ctx context.Context, symbol string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.symbols, symbol)
	return nil
}

func (r *fakeSymbolRepo) FindAll(ctx context.Context) ([]model.SymbolState, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []model.SymbolState
	for _, s := range r.f.symbols {
		out = append(out, s)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	f := newFakeRepo()
	manager := exchange.NewManager(position.NewTracker(), marketdata.NewFeed(&marketdata.FeedConfig{}))
	s := NewService(manager, f)
	require.NoError(t, s.CreateSymbol(context.Background(), "ABC", decimal.RequireFromString("0.01"), 10))
	return s, f
}

func buyLimit(team, price string, qty int64) *PlaceOrderInput {
	return &PlaceOrderInput{
		TeamID:   team,
		Symbol:   "ABC",
		Side:     model.OrderSideBuy,
		Type:     model.OrderTypeLimit,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func sellLimit(team, price string, qty int64) *PlaceOrderInput {
	in := buyLimit(team, price, qty)
	in.Side = model.OrderSideSell
	return in
}

func TestPlaceOrderValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   *PlaceOrderInput
		want error
	}{
		{"unknown symbol", &PlaceOrderInput{TeamID: "alpha", Symbol: "NOPE", Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Quantity: 10}, exchange.ErrSymbolNotFound},
		{"missing team", &PlaceOrderInput{Symbol: "ABC", Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Quantity: 10}, exchange.ErrValidation},
		{"bad side", &PlaceOrderInput{TeamID: "alpha", Symbol: "ABC", Side: "hold", Type: model.OrderTypeMarket, Quantity: 10}, exchange.ErrValidation},
		{"zero qty", buyLimit("alpha", "100", 0), exchange.ErrValidation},
		{"negative qty", buyLimit("alpha", "100", -10), exchange.ErrValidation},
		{"lot misaligned", buyLimit("alpha", "100", 15), exchange.ErrValidation},
		{"zero price", buyLimit("alpha", "0", 10), exchange.ErrValidation},
		{"negative price", buyLimit("alpha", "-1", 10), exchange.ErrValidation},
		{"tick misaligned", buyLimit("alpha", "100.005", 10), exchange.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.PlaceOrder(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPlaceOrderPersists(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()

	_, err := s.PlaceOrder(ctx, sellLimit("beta", "99", 10))
	require.NoError(t, err)
	res, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Price.Equal(decimal.RequireFromString("99")))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.orders, 2)
	assert.Len(t, f.trades, 1)
	assert.Len(t, f.positions, 2)
	for _, o := range f.orders {
		assert.Equal(t, model.OrderStatusFilled, o.Status)
	}
}

func TestPlaceOrderPersistFailure(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()

	f.failOrderSave = true
	res, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	assert.ErrorIs(t, err, exchange.ErrPersistence)
	// the match already happened; the in-memory book keeps the order
	require.NotNil(t, res)
	assert.Equal(t, model.OrderStatusPending, res.Order.Status)
}

func TestOrderSizeLimit(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SetPositionLimit(ctx, model.PositionLimit{Symbol: "ABC", MaxOrderSize: 100}))

	_, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 110))
	assert.ErrorIs(t, err, exchange.ErrLimitExceeded)

	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 100))
	assert.NoError(t, err)
}

func TestPositionLimitProjection(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SetPositionLimit(ctx, model.PositionLimit{Symbol: "ABC", MaxPosition: 100}))

	// build a long position of 100
	_, err := s.PlaceOrder(ctx, sellLimit("beta", "100", 100))
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 100))
	require.NoError(t, err)

	// any further buy projects past the cap and is rejected outright
	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	assert.ErrorIs(t, err, exchange.ErrLimitExceeded)

	// selling reduces exposure and is allowed
	_, err = s.PlaceOrder(ctx, sellLimit("alpha", "101", 50))
	assert.NoError(t, err)

	// the short side is capped symmetrically
	_, err = s.PlaceOrder(ctx, sellLimit("gamma", "200", 110))
	assert.ErrorIs(t, err, exchange.ErrLimitExceeded)
}

func TestLimitAdminExemption(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SetPositionLimit(ctx, model.PositionLimit{Symbol: "ABC", MaxOrderSize: 10}))

	admin := buyLimit("admin", "100", 50)
	admin.IsAdmin = true
	_, err := s.PlaceOrder(ctx, admin)
	assert.NoError(t, err)

	require.NoError(t, s.SetPositionLimit(ctx, model.PositionLimit{Symbol: "ABC", MaxOrderSize: 10, AppliesToAdmin: true}))
	admin2 := sellLimit("admin", "100", 50)
	admin2.IsAdmin = true
	_, err = s.PlaceOrder(ctx, admin2)
	assert.ErrorIs(t, err, exchange.ErrLimitExceeded)
}

func TestCancelOrderOwnership(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = s.CancelOrder(ctx, "beta", id, false)
	assert.ErrorIs(t, err, exchange.ErrForbidden)

	// admins may cancel any order
	cancelled, err := s.CancelOrder(ctx, "admin", id, true)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
}

func TestCancelOrderNotFound(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.CancelOrder(context.Background(), "alpha", "missing", false)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestCancelFilledOrder(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, sellLimit("beta", "100", 10))
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)

	_, err = s.CancelOrder(ctx, "beta", res.Order.ID, false)
	assert.ErrorIs(t, err, exchange.ErrOrderNotCancellable)
}

func TestCancelIsIdempotentAtServiceLevel(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)

	_, err = s.CancelOrder(ctx, "alpha", res.Order.ID, false)
	require.NoError(t, err)

	// second cancel reports the terminal state instead of not-found
	_, err = s.CancelOrder(ctx, "alpha", res.Order.ID, false)
	assert.ErrorIs(t, err, exchange.ErrOrderNotCancellable)
}

func TestSettleThroughService(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()

	_, err := s.PlaceOrder(ctx, sellLimit("beta", "100", 10))
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)

	res, err := s.Settle(ctx, "ABC", decimal.RequireFromString("110"))
	require.NoError(t, err)
	assert.Len(t, res.Positions, 2)

	f.mu.Lock()
	state := f.symbols["ABC"]
	f.mu.Unlock()
	assert.True(t, state.SettlementActive)

	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	assert.ErrorIs(t, err, exchange.ErrSymbolSettled)
}

func TestPauseResumeThroughService(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.PauseTrading(ctx, "ABC"))
	_, err := s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	assert.ErrorIs(t, err, exchange.ErrSymbolHalted)

	f.mu.Lock()
	assert.True(t, f.symbols["ABC"].TradingHalted)
	f.mu.Unlock()

	require.NoError(t, s.ResumeTrading(ctx, "ABC"))
	_, err = s.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	assert.NoError(t, err)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	s1, f := newTestService(t)

	_, err := s1.PlaceOrder(ctx, sellLimit("beta", "100", 10))
	require.NoError(t, err)
	_, err = s1.PlaceOrder(ctx, sellLimit("gamma", "100", 10))
	require.NoError(t, err)

	// a fresh process over the same storage
	manager := exchange.NewManager(position.NewTracker(), marketdata.NewFeed(&marketdata.FeedConfig{}))
	s2 := NewService(manager, f)
	require.NoError(t, s2.Recover(ctx))

	// replayed book keeps FIFO: beta placed first, fills first
	res, err := s2.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "beta", res.Trades[0].SellerTeamID)

	// sequence resumes past persisted orders
	assert.Greater(t, res.Order.Seq, int64(2))
}

func TestRecoverRestoresPositions(t *testing.T) {
	ctx := context.Background()
	s1, f := newTestService(t)

	_, err := s1.PlaceOrder(ctx, sellLimit("beta", "100", 10))
	require.NoError(t, err)
	_, err = s1.PlaceOrder(ctx, buyLimit("alpha", "100", 10))
	require.NoError(t, err)

	manager := exchange.NewManager(position.NewTracker(), marketdata.NewFeed(&marketdata.FeedConfig{}))
	s2 := NewService(manager, f)
	require.NoError(t, s2.Recover(ctx))

	pos, ok := manager.PositionSnapshot("alpha", "ABC")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
}
