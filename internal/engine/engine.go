// Package engine implements the order matching engine: the single state
// machine that accepts orders, validates them against the account guard,
// executes them against the reference price, keeps the resting book, and
// settles fills through the ledger.
//
// There is no order-to-order crossing in this model: the simulated market
// itself is the counterparty, so a marketable order always fills in full
// at the reference price.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/book"
	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/model"
	"github.com/tradesim/exchange-engine/internal/pricing"
	"github.com/tradesim/exchange-engine/internal/risk"
)

var (
	// ErrOrderNotFound is returned when an order ID is unknown.
	ErrOrderNotFound = errors.New("engine: order not found")

	// ErrAlreadyTerminal is returned when cancelling a FILLED or CANCELLED order.
	ErrAlreadyTerminal = errors.New("engine: order already terminal")
)

// SubmitRequest is a new order as received from the collaborator layer.
type SubmitRequest struct {
	UserID     string
	Symbol     string
	Side       model.Side
	Kind       model.Kind
	LimitPrice decimal.Decimal
	Quantity   int64
}

// SubmitResult is the outcome of an accepted order: the order snapshot
// after processing and any fills produced immediately.
type SubmitResult struct {
	Order model.Order
	Fills []model.Fill
}

// SweepResult is the outcome of re-evaluating one symbol's resting book
// after a price update. Filled holds orders that executed at the new
// price; Stale holds resting orders cancelled because the at-fill-time
// guard check no longer passed.
type SweepResult struct {
	Symbol string
	Price  decimal.Decimal
	Fills  []model.Fill
	Filled []model.Order
	Stale  []model.Order
}

// symbolState is the per-symbol actor state: one lock serializes all
// submissions, cancellations, and sweeps for the symbol.
type symbolState struct {
	mu   sync.Mutex
	book *book.Book
}

// Engine coordinates the guard, the books, the price reference, and the
// ledger. Different symbols process fully in parallel; lock order is
// always symbol then user (inside the ledger), never the reverse.
type Engine struct {
	prices *pricing.Reference
	ledger *ledger.Ledger
	limits *risk.Limiter

	mu      sync.Mutex
	symbols map[string]*symbolState
	orders  map[string]*model.Order // id → live order (symbol routing for cancel/lookup)

	now func() time.Time
}

// New creates an engine. limits may be nil to disable risk caps.
func New(prices *pricing.Reference, lg *ledger.Ledger, limits *risk.Limiter) *Engine {
	return &Engine{
		prices:  prices,
		ledger:  lg,
		limits:  limits,
		symbols: make(map[string]*symbolState),
		orders:  make(map[string]*model.Order),
		now:     time.Now,
	}
}

func (e *Engine) symbol(sym string) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.symbols[sym]
	if !ok {
		st = &symbolState{book: book.New(sym)}
		e.symbols[sym] = st
	}
	return st
}

func (e *Engine) register(o *model.Order) {
	e.mu.Lock()
	e.orders[o.ID] = o
	e.mu.Unlock()
}

// Submit validates and executes a new order. Business rejections come back
// as typed errors; an accepted order is returned with its fills.
func (e *Engine) Submit(req SubmitRequest) (*SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	refPrice, err := e.prices.Get(req.Symbol)
	if err != nil {
		return nil, err
	}

	if err := e.checkGuard(req, refPrice); err != nil {
		return nil, err
	}

	o := &model.Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind,
		LimitPrice: req.LimitPrice,
		Quantity:   req.Quantity,
		Status:     model.StatusPending,
		CreatedAt:  e.now().UTC(),
	}

	st := e.symbol(req.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	res := &SubmitResult{}

	switch {
	case o.Kind == model.Market:
		fill, err := e.settle(o, refPrice)
		if err != nil {
			return nil, mapLedgerErr(err)
		}
		res.Fills = append(res.Fills, fill)

	case o.Kind == model.Limit && marketable(o, refPrice):
		// Marketable limit: fills at the reference price, never worse
		// than the limit (price improvement for buys).
		fill, err := e.settle(o, refPrice)
		if err != nil {
			return nil, mapLedgerErr(err)
		}
		res.Fills = append(res.Fills, fill)

	case o.Kind == model.Stop && book.StopTriggered(o, refPrice):
		// Trigger condition already holds: converts to market immediately.
		fill, err := e.settle(o, refPrice)
		if err != nil {
			return nil, mapLedgerErr(err)
		}
		res.Fills = append(res.Fills, fill)

	default:
		st.book.Add(o)
	}

	e.register(o)
	res.Order = *o
	return res, nil
}

// marketable reports whether a limit order crosses the reference price.
func marketable(o *model.Order, refPrice decimal.Decimal) bool {
	if o.Side == model.Buy {
		return o.LimitPrice.GreaterThanOrEqual(refPrice)
	}
	return o.LimitPrice.LessThanOrEqual(refPrice)
}

// settle fills the order's full remaining quantity at price and applies
// it to the ledger. Caller holds the symbol lock.
func (e *Engine) settle(o *model.Order, price decimal.Decimal) (model.Fill, error) {
	qty := o.Remaining()
	if err := e.ledger.ApplyFill(o.UserID, o.Symbol, o.Side, qty, price); err != nil {
		return model.Fill{}, err
	}
	o.RecordFill(qty)
	return model.Fill{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		UserID:    o.UserID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     price,
		Quantity:  qty,
		Timestamp: e.now().UTC(),
	}, nil
}

// Cancel removes an order from the book and marks it CANCELLED. Filled
// quantity already settled through the ledger stays settled.
func (e *Engine) Cancel(orderID string) (model.Order, error) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	e.mu.Unlock()
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}

	st := e.symbol(o.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if o.Terminal() {
		return *o, ErrAlreadyTerminal
	}

	st.book.Remove(o.ID)
	o.Status = model.StatusCancelled
	return *o, nil
}

// Order returns a snapshot of an order by ID.
func (e *Engine) Order(orderID string) (model.Order, error) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	e.mu.Unlock()
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}

	st := e.symbol(o.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return *o, nil
}

// PriceUpdate records a new reference price and re-evaluates the symbol's
// resting book: crossed bids fill first (best price, then oldest), then
// crossed asks, then triggered stops. Every fill re-runs the guard's
// funds/position check at fill time; orders that no longer pass are
// cancelled instead of filling, so the ledger can never go negative.
func (e *Engine) PriceUpdate(symbol string, price decimal.Decimal) (*SweepResult, error) {
	if err := e.prices.Set(symbol, price); err != nil {
		return nil, err
	}

	st := e.symbol(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	res := &SweepResult{Symbol: symbol, Price: price}

	eligible := st.book.CrossedBids(price)
	eligible = append(eligible, st.book.CrossedAsks(price)...)
	eligible = append(eligible, st.book.TriggeredStops(price)...)

	for _, o := range eligible {
		st.book.Remove(o.ID)

		if err := e.checkAtFill(o, price); err != nil {
			o.Status = model.StatusCancelled
			res.Stale = append(res.Stale, *o)
			continue
		}

		fill, err := e.settle(o, price)
		if err != nil {
			// Ledger refused (cash spent or shares sold in the interim):
			// the resting order is stale, cancel it.
			o.Status = model.StatusCancelled
			res.Stale = append(res.Stale, *o)
			continue
		}
		res.Fills = append(res.Fills, fill)
		res.Filled = append(res.Filled, *o)
	}

	return res, nil
}

// Price returns the current reference price for a symbol.
func (e *Engine) Price(symbol string) (decimal.Decimal, error) {
	return e.prices.Get(symbol)
}

// Position returns the user's holding in one symbol, marked to the
// current reference price when one exists.
func (e *Engine) Position(userID, symbol string) model.Position {
	p := e.ledger.Position(userID, symbol)
	if price, err := e.prices.Get(symbol); err == nil {
		markPosition(&p, price)
	}
	return p
}

// Cash returns the user's cash balance.
func (e *Engine) Cash(userID string) decimal.Decimal {
	return e.ledger.Cash(userID)
}

// Deposit credits the user's wallet.
func (e *Engine) Deposit(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return e.ledger.Deposit(userID, amount)
}

// Withdraw debits the user's wallet.
func (e *Engine) Withdraw(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return e.ledger.Withdraw(userID, amount)
}

// Portfolio assembles the user's cash, positions marked to the current
// reference prices, and realized/unrealized P&L.
func (e *Engine) Portfolio(userID string) model.Portfolio {
	positions := e.ledger.Positions(userID)

	cash := e.ledger.Cash(userID)
	equity := cash
	unrealized := decimal.Zero

	for i := range positions {
		if price, err := e.prices.Get(positions[i].Symbol); err == nil {
			markPosition(&positions[i], price)
		}
		equity = equity.Add(positions[i].MarketValue)
		unrealized = unrealized.Add(positions[i].UnrealizedPnL)
	}

	if positions == nil {
		positions = []model.Position{}
	}

	return model.Portfolio{
		UserID:        userID,
		Cash:          cash,
		Positions:     positions,
		Equity:        equity,
		UnrealizedPnL: unrealized,
		RealizedPnL:   e.ledger.RealizedPnL(userID),
	}
}

func markPosition(p *model.Position, price decimal.Decimal) {
	qty := decimal.NewFromInt(p.Quantity)
	p.CurrentPrice = price
	p.MarketValue = price.Mul(qty)
	p.UnrealizedPnL = price.Sub(p.AvgCost).Mul(qty)
}

// BookSnapshot returns the aggregated depth view for one symbol.
func (e *Engine) BookSnapshot(symbol string, depth int) model.BookSnapshot {
	st := e.symbol(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.Snapshot(depth)
}

// RestingOrders counts resting orders across all books.
func (e *Engine) RestingOrders() int {
	e.mu.Lock()
	states := make([]*symbolState, 0, len(e.symbols))
	for _, st := range e.symbols {
		states = append(states, st)
	}
	e.mu.Unlock()

	total := 0
	for _, st := range states {
		st.mu.Lock()
		total += st.book.Len()
		st.mu.Unlock()
	}
	return total
}
