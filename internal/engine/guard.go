// Account guard: pre-trade validation. Rejects economically invalid
// orders before they reach the book, and re-checks resting orders at fill
// time since balances may have changed in the interim.

package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/asset"
	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/model"
)

var (
	// ErrInvalidOrder is returned for malformed input: non-positive
	// quantity, bad side/kind, or a missing limit price.
	ErrInvalidOrder = errors.New("engine: invalid order")

	// ErrInsufficientFunds is returned when a BUY's required funds exceed
	// the user's cash balance.
	ErrInsufficientFunds = errors.New("engine: insufficient funds")

	// ErrInsufficientPosition is returned when a SELL exceeds the user's
	// held quantity.
	ErrInsufficientPosition = errors.New("engine: insufficient position")
)

// validateRequest checks syntactic correctness only; no account state.
func validateRequest(req SubmitRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	}
	if err := asset.ValidateTicker(req.Symbol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if req.Side != model.Buy && req.Side != model.Sell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	switch req.Kind {
	case model.Market:
		return nil
	case model.Limit, model.Stop:
		if req.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: %s orders require a positive limit price", ErrInvalidOrder, req.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind must be MARKET, LIMIT or STOP", ErrInvalidOrder)
	}
}

// checkGuard enforces funds, position, and risk limits at submission.
// For BUY the required funds are referencePrice×quantity for MARKET and
// limitPrice×quantity for LIMIT/STOP.
func (e *Engine) checkGuard(req SubmitRequest, refPrice decimal.Decimal) error {
	qty := decimal.NewFromInt(req.Quantity)
	held := e.ledger.Position(req.UserID, req.Symbol).Quantity

	var buyQty int64
	if req.Side == model.Buy {
		required := refPrice.Mul(qty)
		if req.Kind != model.Market {
			required = req.LimitPrice.Mul(qty)
		}
		if required.GreaterThan(e.ledger.Cash(req.UserID)) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, required, e.ledger.Cash(req.UserID))
		}
		buyQty = req.Quantity
	} else {
		if req.Quantity > held {
			return fmt.Errorf("%w: sell %d, hold %d %s", ErrInsufficientPosition, req.Quantity, held, req.Symbol)
		}
	}

	if err := e.limits.CheckOrder(held, buyQty, refPrice.Mul(qty)); err != nil {
		return err
	}
	return nil
}

// checkAtFill re-runs the funds/position check for a resting order about
// to fill at price. Intervening fills may have spent the cash or sold the
// shares this order depended on.
func (e *Engine) checkAtFill(o *model.Order, price decimal.Decimal) error {
	qty := o.Remaining()
	if o.Side == model.Buy {
		required := price.Mul(decimal.NewFromInt(qty))
		if required.GreaterThan(e.ledger.Cash(o.UserID)) {
			return fmt.Errorf("%w: need %s at fill time", ErrInsufficientFunds, required)
		}
		return nil
	}
	if qty > e.ledger.Position(o.UserID, o.Symbol).Quantity {
		return fmt.Errorf("%w: %d shares at fill time", ErrInsufficientPosition, qty)
	}
	return nil
}

// mapLedgerErr translates ledger settlement failures into guard errors so
// callers see one taxonomy.
func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCash):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrOverSell):
		return fmt.Errorf("%w: %v", ErrInsufficientPosition, err)
	default:
		return err
	}
}
