// Package pricing holds the reference price per symbol — the current
// simulated market price, which is the sole counterparty price in this
// model. Mutated only by the market-data feed; read by the matching
// engine and the account guard. No history is kept here.
package pricing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownSymbol is returned when no reference price exists for a symbol.
	ErrUnknownSymbol = errors.New("pricing: unknown symbol")

	// ErrInvalidPrice is returned when a feed pushes a non-positive price.
	ErrInvalidPrice = errors.New("pricing: price must be positive")
)

// Reference maps symbols to their latest known price.
type Reference struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewReference creates an empty price reference.
func NewReference() *Reference {
	return &Reference{prices: make(map[string]decimal.Decimal)}
}

// Get returns the latest price for a symbol.
func (r *Reference) Get(symbol string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Set updates the latest price for a symbol. Only the feed adapter calls this.
func (r *Reference) Set(symbol string, price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s for %s", ErrInvalidPrice, price, symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[symbol] = price
	return nil
}

// Symbols returns all symbols with a known price.
func (r *Reference) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.prices))
	for s := range r.prices {
		out = append(out, s)
	}
	return out
}
