// Package risk enforces pre-trade exposure limits: a cap on the position
// held in any single symbol and a cap on the notional of one order. Both
// are checked by the account guard before an order reaches the matching
// engine.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPositionLimitExceeded is returned when a buy would push a symbol
	// position beyond the per-symbol maximum.
	ErrPositionLimitExceeded = errors.New("risk: per-symbol position limit exceeded")

	// ErrNotionalLimitExceeded is returned when a single order's notional
	// value exceeds the per-order maximum.
	ErrNotionalLimitExceeded = errors.New("risk: order notional limit exceeded")
)

// Limiter holds the configured limits. A zero limit disables that check.
type Limiter struct {
	// MaxPositionPerSymbol is the maximum quantity held in one symbol.
	MaxPositionPerSymbol int64

	// MaxOrderNotional is the maximum price×quantity of a single order.
	MaxOrderNotional decimal.Decimal
}

// NewLimiter creates a limiter with the given caps.
func NewLimiter(maxPosition int64, maxNotional decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPositionPerSymbol: maxPosition,
		MaxOrderNotional:     maxNotional,
	}
}

// CheckOrder validates an order against the limits.
//
//   - heldQty: the user's current quantity in the symbol
//   - buyQty: quantity being bought (0 for sells)
//   - notional: reference price × order quantity
func (l *Limiter) CheckOrder(heldQty, buyQty int64, notional decimal.Decimal) error {
	if l == nil {
		return nil
	}
	if l.MaxPositionPerSymbol > 0 && heldQty+buyQty > l.MaxPositionPerSymbol {
		return ErrPositionLimitExceeded
	}
	if l.MaxOrderNotional.IsPositive() && notional.GreaterThan(l.MaxOrderNotional) {
		return ErrNotionalLimitExceeded
	}
	return nil
}
