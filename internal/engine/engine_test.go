package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/engine"
	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/model"
	"github.com/tradesim/exchange-engine/internal/pricing"
	"github.com/tradesim/exchange-engine/internal/risk"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEngine seeds AAPL at 178.50 and MSFT at 412.80 and gives every
// account the given starting cash.
func newTestEngine(t *testing.T, startingCash float64) *engine.Engine {
	t.Helper()
	prices := pricing.NewReference()
	if err := prices.Set("AAPL", d(178.50)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	if err := prices.Set("MSFT", d(412.80)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	return engine.New(prices, ledger.New(d(startingCash)), nil)
}

func submit(t *testing.T, e *engine.Engine, req engine.SubmitRequest) *engine.SubmitResult {
	t.Helper()
	res, err := e.Submit(req)
	if err != nil {
		t.Fatalf("submit %+v: %v", req, err)
	}
	return res
}

func buy(userID string, kind model.Kind, limit float64, qty int64) engine.SubmitRequest {
	return engine.SubmitRequest{
		UserID: userID, Symbol: "AAPL", Side: model.Buy,
		Kind: kind, LimitPrice: d(limit), Quantity: qty,
	}
}

func sell(userID string, kind model.Kind, limit float64, qty int64) engine.SubmitRequest {
	r := buy(userID, kind, limit, qty)
	r.Side = model.Sell
	return r
}

// --- Submission ---

func TestSubmit_MarketBuyFillsAtReferencePrice(t *testing.T) {
	e := newTestEngine(t, 2000)

	res := submit(t, e, buy("user1", model.Market, 0, 10))

	if res.Order.Status != model.StatusFilled {
		t.Fatalf("expected FILLED, got %s", res.Order.Status)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}
	if !res.Fills[0].Price.Equal(d(178.50)) {
		t.Errorf("expected fill at 178.50, got %s", res.Fills[0].Price)
	}
	// 2000 − 1785.00 = 215.00
	if cash := e.Cash("user1"); !cash.Equal(d(215)) {
		t.Errorf("expected cash 215, got %s", cash)
	}
	if pos := e.Position("user1", "AAPL"); pos.Quantity != 10 {
		t.Errorf("expected position 10, got %d", pos.Quantity)
	}
}

func TestSubmit_MarketableLimitBuyFillsAtMarketNotLimit(t *testing.T) {
	e := newTestEngine(t, 100000)

	// Limit 180 above the 178.50 reference: fills immediately, and at the
	// reference price — the trader never pays more than needed.
	res := submit(t, e, buy("user1", model.Limit, 180, 10))

	if res.Order.Status != model.StatusFilled {
		t.Fatalf("expected FILLED, got %s", res.Order.Status)
	}
	if !res.Fills[0].Price.Equal(d(178.50)) {
		t.Errorf("expected price improvement to 178.50, got %s", res.Fills[0].Price)
	}
}

func TestSubmit_LimitBuyBelowMarketRests(t *testing.T) {
	e := newTestEngine(t, 100000)

	res := submit(t, e, buy("user1", model.Limit, 175, 10))

	if res.Order.Status != model.StatusPending {
		t.Fatalf("expected PENDING, got %s", res.Order.Status)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(res.Fills))
	}
	if cash := e.Cash("user1"); !cash.Equal(d(100000)) {
		t.Errorf("resting order must not touch cash, got %s", cash)
	}

	snap := e.BookSnapshot("AAPL", 10)
	if len(snap.Bids) != 1 || snap.Bids[0].Quantity != 10 {
		t.Errorf("expected resting bid of 10, got %+v", snap.Bids)
	}
}

func TestSubmit_SellWithoutPositionRejected(t *testing.T) {
	e := newTestEngine(t, 100000)

	_, err := e.Submit(sell("user1", model.Limit, 180, 10))
	if !errors.Is(err, engine.ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}

	snap := e.BookSnapshot("AAPL", 10)
	if len(snap.Asks) != 0 {
		t.Errorf("book must be unchanged after rejection, got %+v", snap.Asks)
	}
}

func TestSubmit_BuyWithoutFundsRejected(t *testing.T) {
	e := newTestEngine(t, 100)

	_, err := e.Submit(buy("user1", model.Market, 0, 10))
	if !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if cash := e.Cash("user1"); !cash.Equal(d(100)) {
		t.Errorf("cash must be unchanged, got %s", cash)
	}
}

func TestSubmit_LimitBuyFundsCheckedAgainstLimitPrice(t *testing.T) {
	// Cash covers 10 shares at 175 but not at the current 178.50; the
	// guard checks limitPrice×quantity for LIMIT orders, so this rests.
	e := newTestEngine(t, 1750)

	res := submit(t, e, buy("user1", model.Limit, 175, 10))
	if res.Order.Status != model.StatusPending {
		t.Errorf("expected PENDING, got %s", res.Order.Status)
	}
}

func TestSubmit_InvalidOrders(t *testing.T) {
	e := newTestEngine(t, 100000)

	cases := []struct {
		name string
		req  engine.SubmitRequest
	}{
		{"zero quantity", buy("user1", model.Market, 0, 0)},
		{"negative quantity", buy("user1", model.Market, 0, -5)},
		{"limit without price", buy("user1", model.Limit, 0, 10)},
		{"stop without price", buy("user1", model.Stop, 0, 10)},
		{"bad side", engine.SubmitRequest{UserID: "user1", Symbol: "AAPL", Side: "HOLD", Kind: model.Market, Quantity: 1}},
		{"bad kind", engine.SubmitRequest{UserID: "user1", Symbol: "AAPL", Side: model.Buy, Kind: "ICEBERG", Quantity: 1}},
		{"bad symbol", engine.SubmitRequest{UserID: "user1", Symbol: "aapl!", Side: model.Buy, Kind: model.Market, Quantity: 1}},
		{"missing user", engine.SubmitRequest{Symbol: "AAPL", Side: model.Buy, Kind: model.Market, Quantity: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Submit(tc.req); !errors.Is(err, engine.ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

func TestSubmit_UnknownSymbol(t *testing.T) {
	e := newTestEngine(t, 100000)

	req := buy("user1", model.Market, 0, 1)
	req.Symbol = "NVDA"
	if _, err := e.Submit(req); !errors.Is(err, pricing.ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

// --- Price updates ---

func TestPriceUpdate_RestingBuyFillsAtNewPrice(t *testing.T) {
	e := newTestEngine(t, 100000)

	res := submit(t, e, buy("user1", model.Limit, 175, 10))
	orderID := res.Order.ID

	sweep, err := e.PriceUpdate("AAPL", d(174))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}

	if len(sweep.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(sweep.Fills))
	}
	// Fills at 174.00 — the new touched price, not the 175.00 limit.
	if !sweep.Fills[0].Price.Equal(d(174)) {
		t.Errorf("expected fill at 174, got %s", sweep.Fills[0].Price)
	}
	if sweep.Fills[0].OrderID != orderID {
		t.Errorf("fill should reference the resting order")
	}

	o, err := e.Order(orderID)
	if err != nil {
		t.Fatalf("order lookup: %v", err)
	}
	if o.Status != model.StatusFilled {
		t.Errorf("expected FILLED, got %s", o.Status)
	}
	if cash := e.Cash("user1"); !cash.Equal(d(100000 - 1740)) {
		t.Errorf("expected cash 98260, got %s", cash)
	}
}

func TestPriceUpdate_RestingSellFillsAtNewPrice(t *testing.T) {
	e := newTestEngine(t, 100000)

	submit(t, e, buy("user1", model.Market, 0, 10))
	res := submit(t, e, sell("user1", model.Limit, 185, 10))

	sweep, err := e.PriceUpdate("AAPL", d(186))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}
	if len(sweep.Fills) != 1 || !sweep.Fills[0].Price.Equal(d(186)) {
		t.Fatalf("expected sell fill at 186, got %+v", sweep.Fills)
	}

	o, _ := e.Order(res.Order.ID)
	if o.Status != model.StatusFilled {
		t.Errorf("expected FILLED, got %s", o.Status)
	}
}

func TestPriceUpdate_FIFOAmongEqualBids(t *testing.T) {
	e := newTestEngine(t, 100000)

	first := submit(t, e, buy("user1", model.Limit, 175, 10))
	second := submit(t, e, buy("user2", model.Limit, 175, 10))

	sweep, err := e.PriceUpdate("AAPL", d(174))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}
	if len(sweep.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(sweep.Fills))
	}
	if sweep.Fills[0].OrderID != first.Order.ID || sweep.Fills[1].OrderID != second.Order.ID {
		t.Errorf("fills must respect arrival order")
	}
}

func TestPriceUpdate_StopBuyTriggersAndFills(t *testing.T) {
	e := newTestEngine(t, 100000)

	res := submit(t, e, buy("user1", model.Stop, 185, 10))
	if res.Order.Status != model.StatusPending {
		t.Fatalf("stop should rest until triggered, got %s", res.Order.Status)
	}

	// Below the trigger: dormant.
	sweep, _ := e.PriceUpdate("AAPL", d(184))
	if len(sweep.Fills) != 0 {
		t.Fatalf("stop must not fill below trigger, got %d fills", len(sweep.Fills))
	}

	// Crossing the trigger converts to market and fills at the new price.
	sweep, _ = e.PriceUpdate("AAPL", d(185.50))
	if len(sweep.Fills) != 1 {
		t.Fatalf("expected stop to fill, got %d fills", len(sweep.Fills))
	}
	if !sweep.Fills[0].Price.Equal(d(185.50)) {
		t.Errorf("expected fill at 185.50, got %s", sweep.Fills[0].Price)
	}
}

func TestPriceUpdate_StopSellTriggers(t *testing.T) {
	e := newTestEngine(t, 100000)

	submit(t, e, buy("user1", model.Market, 0, 10))
	submit(t, e, sell("user1", model.Stop, 170, 10))

	sweep, _ := e.PriceUpdate("AAPL", d(169))
	if len(sweep.Fills) != 1 || !sweep.Fills[0].Price.Equal(d(169)) {
		t.Fatalf("expected stop sell fill at 169, got %+v", sweep.Fills)
	}
	if pos := e.Position("user1", "AAPL"); pos.Quantity != 0 {
		t.Errorf("position should be closed, got %d", pos.Quantity)
	}
}

func TestSubmit_StopAlreadyTriggeredConvertsImmediately(t *testing.T) {
	e := newTestEngine(t, 100000)

	// Buy stop at 170 with the market already at 178.50: condition holds,
	// converts to market at once.
	res := submit(t, e, buy("user1", model.Stop, 170, 5))
	if res.Order.Status != model.StatusFilled {
		t.Fatalf("expected FILLED, got %s", res.Order.Status)
	}
	if !res.Fills[0].Price.Equal(d(178.50)) {
		t.Errorf("expected fill at 178.50, got %s", res.Fills[0].Price)
	}
}

func TestPriceUpdate_StaleBuyCancelledWhenCashGone(t *testing.T) {
	e := newTestEngine(t, 2000)

	// Rest a bid that needs 1750.
	res := submit(t, e, buy("user1", model.Limit, 175, 10))

	// Spend the cash elsewhere: 4 MSFT at 412.80 = 1651.20, leaving 348.80.
	submit(t, e, engine.SubmitRequest{
		UserID: "user1", Symbol: "MSFT", Side: model.Buy,
		Kind: model.Market, Quantity: 4,
	})

	sweep, err := e.PriceUpdate("AAPL", d(174))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}

	if len(sweep.Fills) != 0 {
		t.Fatalf("stale order must not fill, got %d fills", len(sweep.Fills))
	}
	if len(sweep.Stale) != 1 || sweep.Stale[0].ID != res.Order.ID {
		t.Fatalf("expected the resting order to be stale-cancelled, got %+v", sweep.Stale)
	}

	o, _ := e.Order(res.Order.ID)
	if o.Status != model.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", o.Status)
	}
	// Cash is whatever the MSFT buy left; never negative.
	if e.Cash("user1").IsNegative() {
		t.Error("cash must never go negative")
	}
}

func TestPriceUpdate_StaleSellCancelledWhenSharesGone(t *testing.T) {
	e := newTestEngine(t, 100000)

	submit(t, e, buy("user1", model.Market, 0, 10))
	res := submit(t, e, sell("user1", model.Limit, 185, 10))

	// Shares sold out from under the resting ask.
	submit(t, e, sell("user1", model.Market, 0, 10))

	sweep, _ := e.PriceUpdate("AAPL", d(186))
	if len(sweep.Stale) != 1 || sweep.Stale[0].ID != res.Order.ID {
		t.Fatalf("expected stale cancellation, got %+v", sweep.Stale)
	}
	if pos := e.Position("user1", "AAPL"); pos.Quantity != 0 {
		t.Errorf("position must stay at 0, got %d", pos.Quantity)
	}
}

func TestPriceUpdate_RejectsNonPositivePrice(t *testing.T) {
	e := newTestEngine(t, 100000)

	if _, err := e.PriceUpdate("AAPL", d(0)); !errors.Is(err, pricing.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

// --- Cancellation ---

func TestCancel_RestingOrder(t *testing.T) {
	e := newTestEngine(t, 100000)

	res := submit(t, e, buy("user1", model.Limit, 175, 10))

	o, err := e.Cancel(res.Order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != model.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", o.Status)
	}

	// Gone from the book: a qualifying price update produces nothing.
	sweep, _ := e.PriceUpdate("AAPL", d(170))
	if len(sweep.Fills) != 0 {
		t.Errorf("cancelled order must not fill, got %d fills", len(sweep.Fills))
	}
}

func TestCancel_FilledOrderIsAlreadyTerminal(t *testing.T) {
	e := newTestEngine(t, 100000)

	res := submit(t, e, buy("user1", model.Market, 0, 10))
	cashAfterFill := e.Cash("user1")

	_, err := e.Cancel(res.Order.ID)
	if !errors.Is(err, engine.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	// Balances untouched by the failed cancel.
	if !e.Cash("user1").Equal(cashAfterFill) {
		t.Errorf("cash must be unchanged")
	}
	if pos := e.Position("user1", "AAPL"); pos.Quantity != 10 {
		t.Errorf("position must be unchanged, got %d", pos.Quantity)
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	e := newTestEngine(t, 100000)

	if _, err := e.Cancel("no-such-order"); !errors.Is(err, engine.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// --- Portfolio ---

func TestPortfolio_MarksToCurrentPrice(t *testing.T) {
	e := newTestEngine(t, 100000)

	submit(t, e, buy("user1", model.Market, 0, 10)) // 10 @ 178.50

	if _, err := e.PriceUpdate("AAPL", d(180)); err != nil {
		t.Fatalf("price update: %v", err)
	}

	pf := e.Portfolio("user1")
	if len(pf.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(pf.Positions))
	}

	p := pf.Positions[0]
	if !p.CurrentPrice.Equal(d(180)) {
		t.Errorf("expected mark at 180, got %s", p.CurrentPrice)
	}
	// Unrealized = 10 × (180 − 178.50) = 15.
	if !p.UnrealizedPnL.Equal(d(15)) {
		t.Errorf("expected unrealized 15, got %s", p.UnrealizedPnL)
	}
	// Equity = cash + market value = (100000 − 1785) + 1800.
	if !pf.Equity.Equal(d(100015)) {
		t.Errorf("expected equity 100015, got %s", pf.Equity)
	}
}

func TestRiskLimits_RejectOversizedOrders(t *testing.T) {
	prices := pricing.NewReference()
	prices.Set("AAPL", d(178.50))
	limits := risk.NewLimiter(100, d(5000))
	e := engine.New(prices, ledger.New(d(1000000)), limits)

	if _, err := e.Submit(buy("user1", model.Market, 0, 200)); !errors.Is(err, risk.ErrPositionLimitExceeded) {
		t.Errorf("expected position limit rejection, got %v", err)
	}
	if _, err := e.Submit(buy("user1", model.Market, 0, 50)); !errors.Is(err, risk.ErrNotionalLimitExceeded) {
		t.Errorf("expected notional limit rejection, got %v", err)
	}
	if _, err := e.Submit(buy("user1", model.Market, 0, 10)); err != nil {
		t.Errorf("order within limits should pass, got %v", err)
	}
}
