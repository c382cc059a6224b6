// Package book implements the per-symbol resting order book: limit bids
// ordered by descending price then arrival, limit asks by ascending price
// then arrival, and dormant stop orders in arrival order. Entries exist
// only while an order is PENDING or PARTIALLY_FILLED.
//
// A Book is not safe for concurrent use; the matching engine serializes
// all access under the symbol's lock.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/model"
)

type entry struct {
	order *model.Order
	seq   int64
}

// Book holds the resting orders for one symbol.
type Book struct {
	symbol string
	bids   []*entry // LIMIT BUY, descending limit price, then FIFO
	asks   []*entry // LIMIT SELL, ascending limit price, then FIFO
	stops  []*entry // STOP (either side), FIFO; not matchable until triggered
	seq    int64
}

// New creates an empty book for a symbol.
func New(symbol string) *Book {
	return &Book{symbol: symbol}
}

// Symbol returns the symbol this book belongs to.
func (b *Book) Symbol() string { return b.symbol }

// Add inserts a resting order at its price-time priority slot.
func (b *Book) Add(o *model.Order) {
	b.seq++
	e := &entry{order: o, seq: b.seq}

	if o.Kind == model.Stop {
		b.stops = append(b.stops, e)
		return
	}

	if o.Side == model.Buy {
		b.bids = insertSorted(b.bids, e, func(a, c *entry) bool {
			if !a.order.LimitPrice.Equal(c.order.LimitPrice) {
				return a.order.LimitPrice.GreaterThan(c.order.LimitPrice)
			}
			return a.seq < c.seq
		})
	} else {
		b.asks = insertSorted(b.asks, e, func(a, c *entry) bool {
			if !a.order.LimitPrice.Equal(c.order.LimitPrice) {
				return a.order.LimitPrice.LessThan(c.order.LimitPrice)
			}
			return a.seq < c.seq
		})
	}
}

func insertSorted(s []*entry, e *entry, before func(a, b *entry) bool) []*entry {
	i := sort.Search(len(s), func(i int) bool { return before(e, s[i]) })
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = e
	return s
}

// Remove deletes an order from the book by ID. Returns the order, or nil
// if it was not resting here.
func (b *Book) Remove(orderID string) *model.Order {
	for _, side := range []*[]*entry{&b.bids, &b.asks, &b.stops} {
		for i, e := range *side {
			if e.order.ID == orderID {
				*side = append((*side)[:i], (*side)[i+1:]...)
				return e.order
			}
		}
	}
	return nil
}

// CrossedBids returns resting limit buys with limitPrice >= price, best
// price first then oldest first — the sweep order for a downtick.
func (b *Book) CrossedBids(price decimal.Decimal) []*model.Order {
	var out []*model.Order
	for _, e := range b.bids {
		if e.order.LimitPrice.GreaterThanOrEqual(price) {
			out = append(out, e.order)
		}
	}
	return out
}

// CrossedAsks returns resting limit sells with limitPrice <= price, best
// price first then oldest first.
func (b *Book) CrossedAsks(price decimal.Decimal) []*model.Order {
	var out []*model.Order
	for _, e := range b.asks {
		if e.order.LimitPrice.LessThanOrEqual(price) {
			out = append(out, e.order)
		}
	}
	return out
}

// TriggeredStops returns stop orders whose trigger condition holds at
// price, in arrival order. BUY stops trigger at price >= stop price;
// SELL stops at price <= stop price.
func (b *Book) TriggeredStops(price decimal.Decimal) []*model.Order {
	var out []*model.Order
	for _, e := range b.stops {
		if StopTriggered(e.order, price) {
			out = append(out, e.order)
		}
	}
	return out
}

// StopTriggered reports whether a stop order's trigger condition holds.
func StopTriggered(o *model.Order, price decimal.Decimal) bool {
	if o.Side == model.Buy {
		return price.GreaterThanOrEqual(o.LimitPrice)
	}
	return price.LessThanOrEqual(o.LimitPrice)
}

// Len returns the number of resting orders (stops included).
func (b *Book) Len() int {
	return len(b.bids) + len(b.asks) + len(b.stops)
}

// Snapshot aggregates the limit book into price levels, up to depth levels
// per side. Stops are dormant and excluded from depth.
func (b *Book) Snapshot(depth int) model.BookSnapshot {
	if depth <= 0 {
		depth = 10
	}
	return model.BookSnapshot{
		Symbol: b.symbol,
		Bids:   aggregate(b.bids, depth),
		Asks:   aggregate(b.asks, depth),
	}
}

// aggregate sums remaining quantity per price level, preserving the side's
// priority order.
func aggregate(side []*entry, depth int) []model.BookLevel {
	levels := []model.BookLevel{}
	for _, e := range side {
		rem := e.order.Remaining()
		if rem <= 0 {
			continue
		}
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(e.order.LimitPrice) {
			levels[n-1].Quantity += rem
			continue
		}
		if len(levels) >= depth {
			break
		}
		levels = append(levels, model.BookLevel{Price: e.order.LimitPrice, Quantity: rem})
	}
	return levels
}
