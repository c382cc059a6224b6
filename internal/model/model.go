// Package model defines the core domain types shared across the exchange engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Quantities are whole shares (int64).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

// Kind of an order.
type Kind string

// Status of an order. FILLED and CANCELLED are terminal.
type Status string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Market Kind = "MARKET"
	Limit  Kind = "LIMIT"
	Stop   Kind = "STOP"

	StatusPending         Status = "PENDING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
)

// Order is a trader's instruction to buy or sell a symbol. LimitPrice is
// the limit for LIMIT orders and the trigger for STOP orders; it is ignored
// for MARKET orders. Mutated only by the matching engine.
type Order struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           Side            `json:"side" db:"side"`
	Kind           Kind            `json:"kind" db:"kind"`
	LimitPrice     decimal.Decimal `json:"limit_price" db:"limit_price"`
	Quantity       int64           `json:"quantity" db:"quantity"`
	FilledQuantity int64           `json:"filled_quantity" db:"filled_quantity"`
	Status         Status          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled
}

// RecordFill advances FilledQuantity and derives the status.
// Status is FILLED iff FilledQuantity == Quantity.
func (o *Order) RecordFill(qty int64) {
	o.FilledQuantity += qty
	if o.FilledQuantity >= o.Quantity {
		o.FilledQuantity = o.Quantity
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

// Fill is an immutable record of an execution. Price is always the touched
// market price, never the limit price. Produced exactly once per quantity
// unit executed.
type Fill struct {
	ID        string          `json:"id" db:"id"`
	OrderID   string          `json:"order_id" db:"order_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Side      Side            `json:"side" db:"side"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is a trader's holding in one symbol. AvgCost is the
// quantity-weighted average purchase price; it is meaningless when
// Quantity is zero. No short positions in this design (Quantity >= 0).
type Position struct {
	UserID        string          `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates all positions for a user with cash and P&L.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	Cash          decimal.Decimal `json:"cash"`
	Positions     []Position      `json:"positions"`
	Equity        decimal.Decimal `json:"equity"` // cash + Σ market value
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

// BookLevel is one aggregated price level of the resting book.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// BookSnapshot is the depth view of one symbol's resting book.
type BookSnapshot struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}
