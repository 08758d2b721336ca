package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradefloor/pkg/exchange/model"
	"tradefloor/pkg/orderbook"
)

type EventType string

const (
	EventTypeBook  EventType = "orderbook"
	EventTypeQuote EventType = "quote"
	EventTypeTrade EventType = "trade"
)

type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Quote is the L1 view. Sizes are zero when a side is empty.
type Quote struct {
	BidPrice *decimal.Decimal `json:"bid"`
	AskPrice *decimal.Decimal `json:"ask"`
	BidSize  int64            `json:"bid_size"`
	AskSize  int64            `json:"ask_size"`
}

type TradeTick struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Snapshot is an immutable view of one symbol's book published on every
// mutation. Readers never observe a mid-mutation book.
type Snapshot struct {
	Symbol string       `json:"symbol"`
	Seq    uint64       `json:"seq"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	Quote  Quote        `json:"quote"`
	Tape   []TradeTick  `json:"tape"`
	At     time.Time    `json:"at"`
}

// Event carries a per-symbol monotonic sequence number so a subscriber that
// misses one can detect the gap and re-request a snapshot.
type Event struct {
	Type     EventType  `json:"type"`
	Symbol   string     `json:"symbol"`
	Seq      uint64     `json:"seq"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Quote    *Quote     `json:"quote,omitempty"`
	Trade    *TradeTick `json:"trade,omitempty"`
	At       time.Time  `json:"at"`
}

// Sink receives every event off the matching lane, serialized per symbol.
type Sink interface {
	OnEvent(ctx context.Context, ev Event) error
}

type FeedConfig struct {
	Depth     int `yaml:"depth"`
	TapeSize  int `yaml:"tape_size"`
	SubBuffer int `yaml:"sub_buffer"`

	DispatchShards    int `yaml:"dispatch_shards"`
	DispatchQueueSize int `yaml:"dispatch_queue_size"`
}

type symbolFeed struct {
	mu          sync.Mutex
	seq         uint64
	tape        []TradeTick
	latest      *Snapshot
	subscribers map[int]chan Event
	nextSubID   int
}

// Feed derives L1/L2/tape views from book state and fans sequenced events out
// to in-process subscribers and registered sinks.
type Feed struct {
	mu      sync.RWMutex
	cfg     *FeedConfig
	symbols map[string]*symbolFeed

	sinkMu   sync.RWMutex
	sinks    []Sink
	dispatch *shardqueue.Shardqueue

	logger *zap.SugaredLogger
}

func NewFeed(cfg *FeedConfig) *Feed {
	if cfg.Depth == 0 {
		cfg.Depth = 10
	}
	if cfg.TapeSize == 0 {
		cfg.TapeSize = 50
	}
	if cfg.SubBuffer == 0 {
		cfg.SubBuffer = 64
	}
	if cfg.DispatchShards == 0 {
		cfg.DispatchShards = 8
	}
	if cfg.DispatchQueueSize == 0 {
		cfg.DispatchQueueSize = 1024
	}

	f := &Feed{
		cfg:     cfg,
		symbols: make(map[string]*symbolFeed),
		logger:  zap.S(),
	}

	// sink I/O runs off the matching lane; one shard key per symbol keeps
	// delivery ordered per symbol
	f.dispatch = shardqueue.NewShardQueue(cfg.DispatchShards, cfg.DispatchQueueSize)
	f.dispatch.Start(func(msg interface{}) error {
		ev, ok := msg.(Event)
		if !ok {
			return nil
		}
		f.sinkMu.RLock()
		sinks := f.sinks
		f.sinkMu.RUnlock()
		for _, s := range sinks {
			if err := s.OnEvent(context.Background(), ev); err != nil {
				f.logger.Warnw("marketdata sink error", "symbol", ev.Symbol, "seq", ev.Seq, "err", err)
			}
		}
		return nil
	})

	return f
}

// DepthLevels is the number of L2 levels published per side.
func (f *Feed) DepthLevels() int {
	return f.cfg.Depth
}

func (f *Feed) RegisterSink(s Sink) {
	f.sinkMu.Lock()
	defer f.sinkMu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Publish recomputes the symbol's views from the depth passed in and emits
// one trade event per execution, then a book event, then a quote event.
func (f *Feed) Publish(symbol string, bids, asks []orderbook.Level, trades []*model.Trade) {
	sf := f.getOrCreate(symbol)

	sf.mu.Lock()

	now := time.Now().UTC()
	var events []Event

	for _, t := range trades {
		tick := TradeTick{Price: t.Price, Quantity: t.Quantity, ExecutedAt: t.ExecutedAt}
		sf.tape = append(sf.tape, tick)
		if len(sf.tape) > f.cfg.TapeSize {
			sf.tape = sf.tape[len(sf.tape)-f.cfg.TapeSize:]
		}
		sf.seq++
		events = append(events, Event{
			Type:   EventTypeTrade,
			Symbol: symbol,
			Seq:    sf.seq,
			Trade:  &tick,
			At:     now,
		})
	}

	quote := buildQuote(bids, asks)
	sf.seq++
	snap := &Snapshot{
		Symbol: symbol,
		Seq:    sf.seq,
		Bids:   toPriceLevels(bids),
		Asks:   toPriceLevels(asks),
		Quote:  quote,
		Tape:   append([]TradeTick(nil), sf.tape...),
		At:     now,
	}
	sf.latest = snap
	events = append(events, Event{
		Type:     EventTypeBook,
		Symbol:   symbol,
		Seq:      snap.Seq,
		Snapshot: snap,
		At:       now,
	})

	sf.seq++
	events = append(events, Event{
		Type:   EventTypeQuote,
		Symbol: symbol,
		Seq:    sf.seq,
		Quote:  &quote,
		At:     now,
	})

	subs := make([]chan Event, 0, len(sf.subscribers))
	for _, ch := range sf.subscribers {
		subs = append(subs, ch)
	}
	sf.mu.Unlock()

	for _, ev := range events {
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				// slow subscriber: drop, the seq gap triggers a resync
			}
		}
		f.dispatch.Shard(symbol, ev)
	}
}

// Subscribe returns a buffered event channel for one symbol and a cancel
// func. Events may be dropped when the buffer is full; watch Seq.
func (f *Feed) Subscribe(symbol string) (<-chan Event, func()) {
	sf := f.getOrCreate(symbol)

	sf.mu.Lock()
	defer sf.mu.Unlock()

	id := sf.nextSubID
	sf.nextSubID++
	ch := make(chan Event, f.cfg.SubBuffer)
	sf.subscribers[id] = ch

	cancel := func() {
		sf.mu.Lock()
		defer sf.mu.Unlock()
		if _, ok := sf.subscribers[id]; ok {
			delete(sf.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Snapshot returns the latest published view for the symbol.
func (f *Feed) Snapshot(symbol string) (*Snapshot, bool) {
	f.mu.RLock()
	sf, ok := f.symbols[symbol]
	f.mu.RUnlock()
	if !ok {
		return nil, false
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.latest == nil {
		return nil, false
	}
	return sf.latest, true
}

// Remove drops a deleted symbol's feed state and closes its subscribers.
func (f *Feed) Remove(symbol string) {
	f.mu.Lock()
	sf, ok := f.symbols[symbol]
	delete(f.symbols, symbol)
	f.mu.Unlock()
	if !ok {
		return
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()
	for id, ch := range sf.subscribers {
		delete(sf.subscribers, id)
		close(ch)
	}
}

func (f *Feed) getOrCreate(symbol string) *symbolFeed {
	f.mu.RLock()
	sf, ok := f.symbols[symbol]
	f.mu.RUnlock()
	if ok {
		return sf
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if sf, ok = f.symbols[symbol]; ok {
		return sf
	}
	sf = &symbolFeed{subscribers: make(map[int]chan Event)}
	f.symbols[symbol] = sf
	return sf
}

func toPriceLevels(levels []orderbook.Level) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevel{
			Price:    model.TicksToPrice(l.Price),
			Quantity: l.Qty,
			Orders:   l.Orders,
		})
	}
	return out
}

func buildQuote(bids, asks []orderbook.Level) Quote {
	var q Quote
	if len(bids) > 0 {
		p := model.TicksToPrice(bids[0].Price)
		q.BidPrice = &p
		q.BidSize = bids[0].Qty
	}
	if len(asks) > 0 {
		p := model.TicksToPrice(asks[0].Price)
		q.AskPrice = &p
		q.AskSize = asks[0].Qty
	}
	return q
}
