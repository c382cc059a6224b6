// Package ledger tracks per-user cash balances and per-symbol positions
// with weighted-average cost basis. Positions are updated only via fills;
// cash additionally via wallet deposits and withdrawals.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/model"
)

var (
	// ErrOverSell is returned when a SELL fill exceeds the held quantity.
	// The account guard should make this unreachable; seeing it means an
	// upstream invariant was already broken.
	ErrOverSell = errors.New("ledger: sell quantity exceeds position")

	// ErrInsufficientCash is returned when a withdrawal or BUY fill would
	// drive the cash balance negative.
	ErrInsufficientCash = errors.New("ledger: insufficient cash")

	// ErrInvalidAmount is returned for non-positive wallet amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

type position struct {
	quantity int64
	avgCost  decimal.Decimal
}

type account struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*position
	realized  decimal.Decimal
}

// Ledger owns all account state. Accounts are created lazily with the
// configured starting cash on first touch. Each account carries its own
// mutex so a user's fills are serialized independently of other users.
type Ledger struct {
	mu           sync.Mutex
	accounts     map[string]*account
	startingCash decimal.Decimal
}

// New creates a ledger. Every account starts with startingCash.
func New(startingCash decimal.Decimal) *Ledger {
	return &Ledger{
		accounts:     make(map[string]*account),
		startingCash: startingCash,
	}
}

func (l *Ledger) account(userID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[userID]
	if !ok {
		a = &account{
			cash:      l.startingCash,
			positions: make(map[string]*position),
		}
		l.accounts[userID] = a
	}
	return a
}

// Cash returns the user's current cash balance.
func (l *Ledger) Cash(userID string) decimal.Decimal {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the user's holding in one symbol. A zero-quantity
// position is returned for symbols never traded.
func (l *Ledger) Position(userID, symbol string) model.Position {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[symbol]
	if !ok {
		return model.Position{UserID: userID, Symbol: symbol}
	}
	return model.Position{
		UserID:   userID,
		Symbol:   symbol,
		Quantity: p.quantity,
		AvgCost:  p.avgCost,
	}
}

// RealizedPnL returns the user's cumulative realized profit and loss.
func (l *Ledger) RealizedPnL(userID string) decimal.Decimal {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}

// ApplyFill settles one fill against the user's cash and position.
// BUY: position grows, avgCost becomes the quantity-weighted average,
// cash decreases by price×quantity. SELL: position shrinks, avgCost is
// unchanged, cash increases, and P&L of quantity×(price−avgCost) is
// realized. Atomic per user.
func (l *Ledger) ApplyFill(userID, symbol string, side model.Side, quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: fill quantity %d", ErrInvalidAmount, quantity)
	}

	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	qty := decimal.NewFromInt(quantity)
	notional := price.Mul(qty)

	p, ok := a.positions[symbol]
	if !ok {
		p = &position{avgCost: decimal.Zero}
		a.positions[symbol] = p
	}

	switch side {
	case model.Buy:
		if notional.GreaterThan(a.cash) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, notional, a.cash)
		}
		oldQty := decimal.NewFromInt(p.quantity)
		newQty := p.quantity + quantity
		p.avgCost = p.avgCost.Mul(oldQty).Add(notional).Div(decimal.NewFromInt(newQty))
		p.quantity = newQty
		a.cash = a.cash.Sub(notional)

	case model.Sell:
		if quantity > p.quantity {
			return fmt.Errorf("%w: sell %d, hold %d %s", ErrOverSell, quantity, p.quantity, symbol)
		}
		a.realized = a.realized.Add(price.Sub(p.avgCost).Mul(qty))
		p.quantity -= quantity
		a.cash = a.cash.Add(notional)
		if p.quantity == 0 {
			// Fully closed: quantity zeroed, avgCost irrelevant.
			p.avgCost = decimal.Zero
		}

	default:
		return fmt.Errorf("ledger: unknown side %q", side)
	}

	return nil
}

// Deposit credits the user's cash balance.
func (l *Ledger) Deposit(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Add(amount)
	return a.cash, nil
}

// Withdraw debits the user's cash balance; fails rather than going negative.
func (l *Ledger) Withdraw(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.cash) {
		return decimal.Zero, fmt.Errorf("%w: withdraw %s, have %s", ErrInsufficientCash, amount, a.cash)
	}
	a.cash = a.cash.Sub(amount)
	return a.cash, nil
}

// Positions returns all non-zero holdings for a user.
func (l *Ledger) Positions(userID string) []model.Position {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []model.Position
	for symbol, p := range a.positions {
		if p.quantity == 0 {
			continue
		}
		out = append(out, model.Position{
			UserID:   userID,
			Symbol:   symbol,
			Quantity: p.quantity,
			AvgCost:  p.avgCost,
		})
	}
	return out
}
