package orderbook

import (
	"container/heap"
	"sort"

	"github.com/gammazero/deque"
)

// Level is one aggregated price level of a depth view.
type Level struct {
	Price  int64
	Qty    int64
	Orders int
}

// Book is a single symbol's bid/ask ladder. It is not safe for concurrent
// use; the exchange manager serializes every mutation through the symbol's
// lane.
type Book struct {
	symbol string

	bids map[int64]*deque.Deque[*Order]
	asks map[int64]*deque.Deque[*Order]

	bidHeap *PriceHeap
	askHeap *PriceHeap

	// resting orders by id, for cancel lookup
	index map[string]*Order
}

func NewBook(symbol string) *Book {
	bidHeap := NewPriceHeap(func(i, j int64) bool { return i > j }) // Max-heap
	askHeap := NewPriceHeap(func(i, j int64) bool { return i < j }) // Min-heap

	return &Book{
		symbol:  symbol,
		bids:    make(map[int64]*deque.Deque[*Order]),
		asks:    make(map[int64]*deque.Deque[*Order]),
		bidHeap: bidHeap,
		askHeap: askHeap,
		index:   make(map[string]*Order),
	}
}

func (b *Book) Symbol() string { return b.symbol }

// Submit sweeps the incoming order against the opposite side under price-time
// priority, after cancelling any crossing resting orders of the same team.
// A limit remainder is rested at the back of its level; a market remainder is
// dropped. Returns the fills, any self-trade cancels, and whether the order
// now rests.
func (b *Book) Submit(order *Order) ([]Fill, []Cancel, bool) {
	if _, ok := b.index[order.ID]; ok {
		return nil, nil, false
	}

	cancels := b.preventSelfTrade(order)
	fills := b.match(order)

	rested := false
	if !order.Market && order.Qty > 0 {
		b.addToBook(order)
		rested = true
	}

	return fills, cancels, rested
}

// Rest places a limit order straight into the book without matching. Used
// when rebuilding a book from persisted orders; replaying them in admission
// order reproduces the original FIFO queues.
func (b *Book) Rest(order *Order) {
	if order.Market || order.Qty <= 0 {
		return
	}
	if _, ok := b.index[order.ID]; ok {
		return
	}
	b.addToBook(order)
}

// Cancel removes a resting order. The level is dropped when its queue
// empties.
func (b *Book) Cancel(orderID string) (*Cancel, error) {
	order, ok := b.index[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	b.removeResting(order)
	return &Cancel{
		OrderID: order.ID,
		TeamID:  order.TeamID,
		Qty:     order.Qty,
		Reason:  CancelReasonRequest,
	}, nil
}

// CancelAll empties the book, used at settlement.
func (b *Book) CancelAll(reason string) []Cancel {
	orders := make([]*Order, 0, len(b.index))
	for _, o := range b.index {
		orders = append(orders, o)
	}
	// deterministic admission order
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })

	cancels := make([]Cancel, 0, len(orders))
	for _, o := range orders {
		b.removeResting(o)
		cancels = append(cancels, Cancel{
			OrderID: o.ID,
			TeamID:  o.TeamID,
			Qty:     o.Qty,
			Reason:  reason,
		})
	}
	return cancels
}

// Resting reports whether the order still rests in the book.
func (b *Book) Resting(orderID string) bool {
	_, ok := b.index[orderID]
	return ok
}

// BestBid returns the best bid price and aggregate quantity.
func (b *Book) BestBid() (int64, int64, bool) {
	return b.best(b.bidHeap, b.bids)
}

// BestAsk returns the best ask price and aggregate quantity.
func (b *Book) BestAsk() (int64, int64, bool) {
	return b.best(b.askHeap, b.asks)
}

// Depth returns aggregated levels: bids by descending price, asks ascending,
// at most n per side.
func (b *Book) Depth(n int) (bids, asks []Level) {
	bids = levels(b.bids, n, func(i, j int64) bool { return i > j })
	asks = levels(b.asks, n, func(i, j int64) bool { return i < j })
	return bids, asks
}

func levels(book map[int64]*deque.Deque[*Order], n int, less func(i, j int64) bool) []Level {
	prices := make([]int64, 0, len(book))
	for p := range book {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return less(prices[i], prices[j]) })

	out := make([]Level, 0, min(n, len(prices)))
	for _, p := range prices {
		if len(out) >= n {
			break
		}
		q := book[p]
		lvl := Level{Price: p}
		for i := 0; i < q.Len(); i++ {
			lvl.Qty += q.At(i).Qty
			lvl.Orders++
		}
		if lvl.Qty > 0 {
			out = append(out, lvl)
		}
	}
	return out
}

func (b *Book) match(order *Order) []Fill {
	var fills []Fill

	counterBook := b.asks
	counterHeap := b.askHeap
	if order.Side == Sell {
		counterBook = b.bids
		counterHeap = b.bidHeap
	}

	for order.Qty > 0 {
		bestPrice, ok := counterHeap.Peek()
		if !ok || !order.crosses(bestPrice) {
			break
		}

		q := counterBook[bestPrice]
		if q == nil || q.Len() == 0 {
			heap.Pop(counterHeap)
			delete(counterBook, bestPrice)
			continue
		}

		best := q.Front()
		fillQty := min(order.Qty, best.Qty)
		order.Qty -= fillQty
		best.Qty -= fillQty

		fills = append(fills, Fill{
			MakerOrderID: best.ID,
			TakerOrderID: order.ID,
			MakerTeamID:  best.TeamID,
			TakerTeamID:  order.TeamID,
			TakerSide:    order.Side,
			Price:        bestPrice,
			Qty:          fillQty,
		})

		if best.Qty == 0 {
			q.PopFront()
			delete(b.index, best.ID)
			if q.Len() == 0 {
				heap.Pop(counterHeap)
				delete(counterBook, bestPrice)
			}
		}
	}

	return fills
}

// preventSelfTrade cancels resting same-team quantity the incoming order
// would otherwise trade against, walking crossed levels best-first. A market
// order burns its own quantity against the cancelled amount.
func (b *Book) preventSelfTrade(order *Order) []Cancel {
	counterBook := b.asks
	counterLess := func(i, j int64) bool { return i < j }
	if order.Side == Sell {
		counterBook = b.bids
		counterLess = func(i, j int64) bool { return i > j }
	}

	var crossed []int64
	for p := range counterBook {
		if order.crosses(p) {
			crossed = append(crossed, p)
		}
	}
	if len(crossed) == 0 {
		return nil
	}
	sort.Slice(crossed, func(i, j int) bool { return counterLess(crossed[i], crossed[j]) })

	remaining := order.Qty
	var cancels []Cancel
	for _, p := range crossed {
		if remaining <= 0 {
			break
		}
		q := counterBook[p]
		for i := 0; i < q.Len() && remaining > 0; {
			r := q.At(i)
			if r.TeamID != order.TeamID {
				i++
				continue
			}
			cancelQty := min(remaining, r.Qty)
			if cancelQty == r.Qty {
				q.Remove(i)
				delete(b.index, r.ID)
				if q.Len() == 0 {
					delete(counterBook, p)
				}
			} else {
				// partial: remainder loses its queue position
				r.Qty -= cancelQty
				q.Remove(i)
				q.PushBack(r)
			}
			cancels = append(cancels, Cancel{
				OrderID: r.ID,
				TeamID:  r.TeamID,
				Qty:     cancelQty,
				Reason:  CancelReasonSelfTrade,
			})
			remaining -= cancelQty
			if q.Len() == 0 {
				break
			}
		}
	}

	if order.Market {
		order.Qty = remaining
	}
	return cancels
}

func (b *Book) addToBook(order *Order) {
	book := b.bids
	priceHeap := b.bidHeap
	if order.Side == Sell {
		book = b.asks
		priceHeap = b.askHeap
	}

	if book[order.Price] == nil {
		book[order.Price] = &deque.Deque[*Order]{}
		heap.Push(priceHeap, order.Price)
	}
	book[order.Price].PushBack(order)
	b.index[order.ID] = order
}

func (b *Book) removeResting(order *Order) {
	book := b.bids
	if order.Side == Sell {
		book = b.asks
	}

	q := book[order.Price]
	if q != nil {
		for i := 0; i < q.Len(); i++ {
			if q.At(i).ID == order.ID {
				q.Remove(i)
				break
			}
		}
		if q.Len() == 0 {
			delete(book, order.Price)
		}
	}
	delete(b.index, order.ID)
}

func (b *Book) best(priceHeap *PriceHeap, book map[int64]*deque.Deque[*Order]) (int64, int64, bool) {
	for {
		price, ok := priceHeap.Peek()
		if !ok {
			return 0, 0, false
		}
		q := book[price]
		if q == nil || q.Len() == 0 {
			heap.Pop(priceHeap)
			delete(book, price)
			continue
		}
		var qty int64
		for i := 0; i < q.Len(); i++ {
			qty += q.At(i).Qty
		}
		return price, qty, true
	}
}
