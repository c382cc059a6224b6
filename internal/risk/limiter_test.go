package risk_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/risk"
)

func TestCheckOrder_PositionLimit(t *testing.T) {
	l := risk.NewLimiter(100, decimal.Zero)

	if err := l.CheckOrder(90, 10, decimal.NewFromInt(1000)); err != nil {
		t.Errorf("at the limit should pass, got %v", err)
	}
	if err := l.CheckOrder(90, 11, decimal.NewFromInt(1000)); !errors.Is(err, risk.ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_NotionalLimit(t *testing.T) {
	l := risk.NewLimiter(0, decimal.NewFromInt(5000))

	if err := l.CheckOrder(0, 10, decimal.NewFromInt(5000)); err != nil {
		t.Errorf("at the limit should pass, got %v", err)
	}
	if err := l.CheckOrder(0, 10, decimal.NewFromFloat(5000.01)); !errors.Is(err, risk.ErrNotionalLimitExceeded) {
		t.Errorf("expected ErrNotionalLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_ZeroLimitsDisable(t *testing.T) {
	l := risk.NewLimiter(0, decimal.Zero)

	if err := l.CheckOrder(1<<40, 1<<40, decimal.NewFromInt(1<<50)); err != nil {
		t.Errorf("zero limits must disable checks, got %v", err)
	}
}

func TestCheckOrder_NilLimiter(t *testing.T) {
	var l *risk.Limiter

	if err := l.CheckOrder(10, 10, decimal.NewFromInt(100)); err != nil {
		t.Errorf("nil limiter must pass everything, got %v", err)
	}
}
