package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestApplyFill_BuyUpdatesCashAndAvgCost(t *testing.T) {
	lg := ledger.New(d(2000))

	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 10, d(178.50)); err != nil {
		t.Fatalf("apply fill: %v", err)
	}

	if cash := lg.Cash("user1"); !cash.Equal(d(215)) {
		t.Errorf("cash should be 2000 - 1785 = 215, got %s", cash)
	}

	pos := lg.Position("user1", "AAPL")
	if pos.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", pos.Quantity)
	}
	if !pos.AvgCost.Equal(d(178.50)) {
		t.Errorf("expected avg cost 178.50, got %s", pos.AvgCost)
	}
}

func TestApplyFill_BuyWeightedAvgCost(t *testing.T) {
	lg := ledger.New(d(100000))

	// 10 @ 100, then 30 @ 140 → avg = (1000 + 4200) / 40 = 130.
	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 10, d(100)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 30, d(140)); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos := lg.Position("user1", "AAPL")
	if pos.Quantity != 40 {
		t.Errorf("expected quantity 40, got %d", pos.Quantity)
	}
	if !pos.AvgCost.Equal(d(130)) {
		t.Errorf("expected avg cost 130, got %s", pos.AvgCost)
	}
}

func TestApplyFill_SellRealizesPnLKeepsAvgCost(t *testing.T) {
	lg := ledger.New(d(100000))

	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 20, d(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := lg.ApplyFill("user1", "AAPL", model.Sell, 5, d(120)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	pos := lg.Position("user1", "AAPL")
	if pos.Quantity != 15 {
		t.Errorf("expected quantity 15, got %d", pos.Quantity)
	}
	if !pos.AvgCost.Equal(d(100)) {
		t.Errorf("avg cost must not change on sell, got %s", pos.AvgCost)
	}
	// Realized = 5 × (120 − 100) = 100.
	if pnl := lg.RealizedPnL("user1"); !pnl.Equal(d(100)) {
		t.Errorf("expected realized PnL 100, got %s", pnl)
	}
	// Cash = 100000 − 2000 + 600 = 98600.
	if cash := lg.Cash("user1"); !cash.Equal(d(98600)) {
		t.Errorf("expected cash 98600, got %s", cash)
	}
}

func TestApplyFill_RoundTripZeroNet(t *testing.T) {
	lg := ledger.New(d(100000))

	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 10, d(178.50)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := lg.ApplyFill("user1", "AAPL", model.Sell, 10, d(178.50)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	if cash := lg.Cash("user1"); !cash.Equal(d(100000)) {
		t.Errorf("round trip should leave cash unchanged, got %s", cash)
	}
	if pnl := lg.RealizedPnL("user1"); !pnl.IsZero() {
		t.Errorf("round trip should realize zero PnL, got %s", pnl)
	}
	if pos := lg.Position("user1", "AAPL"); pos.Quantity != 0 {
		t.Errorf("position should be fully closed, got %d", pos.Quantity)
	}
}

func TestApplyFill_OverSell(t *testing.T) {
	lg := ledger.New(d(100000))

	if err := lg.ApplyFill("user1", "AAPL", model.Buy, 5, d(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	err := lg.ApplyFill("user1", "AAPL", model.Sell, 6, d(100))
	if !errors.Is(err, ledger.ErrOverSell) {
		t.Errorf("expected ErrOverSell, got %v", err)
	}
	// State must be untouched after the rejection.
	if pos := lg.Position("user1", "AAPL"); pos.Quantity != 5 {
		t.Errorf("position should be unchanged, got %d", pos.Quantity)
	}
}

func TestApplyFill_BuyCannotGoNegative(t *testing.T) {
	lg := ledger.New(d(100))

	err := lg.ApplyFill("user1", "AAPL", model.Buy, 10, d(50))
	if !errors.Is(err, ledger.ErrInsufficientCash) {
		t.Errorf("expected ErrInsufficientCash, got %v", err)
	}
	if cash := lg.Cash("user1"); !cash.Equal(d(100)) {
		t.Errorf("cash should be unchanged, got %s", cash)
	}
}

func TestWallet_DepositWithdraw(t *testing.T) {
	lg := ledger.New(d(1000))

	cash, err := lg.Deposit("user1", d(500))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !cash.Equal(d(1500)) {
		t.Errorf("expected 1500 after deposit, got %s", cash)
	}

	cash, err = lg.Withdraw("user1", d(1500))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !cash.IsZero() {
		t.Errorf("expected 0 after withdraw, got %s", cash)
	}

	if _, err := lg.Withdraw("user1", d(1)); !errors.Is(err, ledger.ErrInsufficientCash) {
		t.Errorf("expected ErrInsufficientCash, got %v", err)
	}
	if _, err := lg.Deposit("user1", d(-5)); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative deposit, got %v", err)
	}
}

func TestPositions_SkipsClosed(t *testing.T) {
	lg := ledger.New(d(100000))

	lg.ApplyFill("user1", "AAPL", model.Buy, 10, d(100))
	lg.ApplyFill("user1", "MSFT", model.Buy, 5, d(200))
	lg.ApplyFill("user1", "AAPL", model.Sell, 10, d(110))

	positions := lg.Positions("user1")
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	if positions[0].Symbol != "MSFT" {
		t.Errorf("expected MSFT, got %s", positions[0].Symbol)
	}
}
