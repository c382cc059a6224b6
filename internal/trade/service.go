// Package trade provides the HTTP handlers over the matching engine:
// order submission and cancellation, price-feed ingestion, book depth,
// portfolio, wallet, and order/fill history.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/engine"
	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/metrics"
	"github.com/tradesim/exchange-engine/internal/model"
	"github.com/tradesim/exchange-engine/internal/pricing"
	"github.com/tradesim/exchange-engine/internal/risk"
	"github.com/tradesim/exchange-engine/internal/store"
)

// Service handles exchange operations. The engine serializes matching per
// symbol; handlers persist accepted orders and fills to the store and
// broadcast events over the WebSocket hub.
type Service struct {
	engine *engine.Engine
	store  store.Store
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, hub *WSHub) *Service {
	return &Service{
		engine: eng,
		store:  st,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`        // "BUY" or "SELL"
	Kind       string          `json:"kind"`        // "MARKET", "LIMIT" or "STOP"
	LimitPrice decimal.Decimal `json:"limit_price"` // limit or stop trigger; ignored for MARKET
	Quantity   int64           `json:"quantity"`
}

// OrderResponse is the JSON body returned from POST /orders.
type OrderResponse struct {
	Order model.Order  `json:"order"`
	Fills []model.Fill `json:"fills"`
}

// PriceRequest is the JSON body for PUT /prices/{symbol}.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// WalletRequest is the JSON body for wallet deposits and withdrawals.
type WalletRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// WalletResponse returns the balance after a wallet operation.
type WalletResponse struct {
	UserID string          `json:"user_id"`
	Cash   decimal.Decimal `json:"cash"`
}

// --- HTTP Handlers ---

// SubmitOrder handles POST /api/v1/orders.
// Returns 200 with fills when the order executed, 201 when it rests.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.engine.Submit(engine.SubmitRequest{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       model.Side(req.Side),
		Kind:       model.Kind(req.Kind),
		LimitPrice: req.LimitPrice,
		Quantity:   req.Quantity,
	})
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, err.Error(), statusForError(err))
		return
	}

	ctx := r.Context()
	if err := s.store.InsertOrder(ctx, &res.Order); err != nil {
		slog.Error("failed to persist order", "order_id", res.Order.ID, "err", err)
	}
	for i := range res.Fills {
		if err := s.store.InsertFill(ctx, &res.Fills[i]); err != nil {
			slog.Error("failed to persist fill", "fill_id", res.Fills[i].ID, "err", err)
		}
	}

	metrics.OrdersTotal.WithLabelValues(req.Side, req.Kind).Inc()
	metrics.RestingOrders.Set(float64(s.engine.RestingOrders()))

	slog.Info("order accepted",
		"order_id", res.Order.ID,
		"user", req.UserID,
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Quantity,
		"status", res.Order.Status,
	)

	s.broadcastFills(res.Fills)
	s.broadcastStatus(res.Order)

	status := http.StatusCreated // resting
	if len(res.Fills) > 0 {
		metrics.FillsTotal.WithLabelValues(req.Side).Add(float64(len(res.Fills)))
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(OrderResponse{Order: res.Order, Fills: fills(res.Fills)})
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := s.engine.Cancel(orderID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.store.UpdateOrder(r.Context(), &o); err != nil {
		slog.Error("failed to persist cancellation", "order_id", o.ID, "err", err)
	}
	metrics.RestingOrders.Set(float64(s.engine.RestingOrders()))

	slog.Info("order cancelled", "order_id", o.ID, "user", o.UserID, "symbol", o.Symbol)
	s.broadcastStatus(o)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, "order not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

// ListUserOrders handles GET /api/v1/users/{userID}/orders.
func (s *Service) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	orders, err := s.store.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// ListUserFills handles GET /api/v1/users/{userID}/fills.
func (s *Service) ListUserFills(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	userFills, err := s.store.ListFillsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list fills", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fills(userFills))
}

// GetTape handles GET /api/v1/symbols/{symbol}/fills.
func (s *Service) GetTape(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	tape, err := s.store.ListFillsBySymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, "failed to load tape", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fills(tape))
}

// GetBook handles GET /api/v1/book/{symbol}?depth=N.
func (s *Service) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 {
			depth = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.BookSnapshot(symbol, depth))
}

// GetPrice handles GET /api/v1/prices/{symbol}.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	price, err := s.engine.Price(symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{"price": price})
}

// PutPrice handles PUT /api/v1/prices/{symbol} — the inbound feed boundary.
func (s *Service) PutPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.ApplyPriceUpdate(symbol, req.Price)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.Portfolio(userID))
}

// Deposit handles POST /api/v1/wallet/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.walletOp(w, r, s.engine.Deposit, "deposit")
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	s.walletOp(w, r, s.engine.Withdraw, "withdraw")
}

func (s *Service) walletOp(w http.ResponseWriter, r *http.Request,
	op func(string, decimal.Decimal) (decimal.Decimal, error), name string) {

	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	cash, err := op(req.UserID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	slog.Info("wallet "+name, "user", req.UserID, "amount", req.Amount.String(), "cash", cash.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WalletResponse{UserID: req.UserID, Cash: cash})
}

// ApplyPriceUpdate feeds a new price into the engine, persists resulting
// fills and status changes, and broadcasts events. Used by both the feed
// simulator and the PUT /prices handler.
func (s *Service) ApplyPriceUpdate(symbol string, price decimal.Decimal) (*engine.SweepResult, error) {
	res, err := s.engine.PriceUpdate(symbol, price)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	for i := range res.Fills {
		if err := s.store.InsertFill(ctx, &res.Fills[i]); err != nil {
			slog.Error("failed to persist fill", "fill_id", res.Fills[i].ID, "err", err)
		}
	}
	for i := range res.Filled {
		if err := s.store.UpdateOrder(ctx, &res.Filled[i]); err != nil {
			slog.Error("failed to persist order update", "order_id", res.Filled[i].ID, "err", err)
		}
		metrics.FillsTotal.WithLabelValues(string(res.Filled[i].Side)).Inc()
	}
	for i := range res.Stale {
		if err := s.store.UpdateOrder(ctx, &res.Stale[i]); err != nil {
			slog.Error("failed to persist stale cancellation", "order_id", res.Stale[i].ID, "err", err)
		}
		metrics.StaleCancellations.Inc()
		slog.Warn("stale order cancelled",
			"order_id", res.Stale[i].ID,
			"user", res.Stale[i].UserID,
			"symbol", symbol,
		)
	}
	metrics.RestingOrders.Set(float64(s.engine.RestingOrders()))

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "price_update", Symbol: symbol, Price: price.String()})
	}
	s.broadcastFills(res.Fills)
	for _, o := range res.Filled {
		s.broadcastStatus(o)
	}
	for _, o := range res.Stale {
		s.broadcastStatus(o)
	}

	return res, nil
}

// --- Broadcast helpers ---

func (s *Service) broadcastFills(fs []model.Fill) {
	if s.wsHub == nil {
		return
	}
	for _, f := range fs {
		s.wsHub.Broadcast(WSMessage{
			Type:     "fill",
			Symbol:   f.Symbol,
			Price:    f.Price.String(),
			OrderID:  f.OrderID,
			UserID:   f.UserID,
			Side:     string(f.Side),
			Quantity: f.Quantity,
		})
	}
}

func (s *Service) broadcastStatus(o model.Order) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:    "order_status",
		Symbol:  o.Symbol,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
	})
}

// --- Error mapping ---

// statusForError maps the business error taxonomy onto HTTP statuses:
// malformed input → 400, unknown resources → 404, economic rejections and
// terminal-state conflicts → 409.
func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder),
		errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, pricing.ErrUnknownSymbol),
		errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientPosition),
		errors.Is(err, engine.ErrAlreadyTerminal),
		errors.Is(err, ledger.ErrInsufficientCash),
		errors.Is(err, risk.ErrPositionLimitExceeded),
		errors.Is(err, risk.ErrNotionalLimitExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, engine.ErrInsufficientPosition):
		return "insufficient_position"
	case errors.Is(err, pricing.ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, risk.ErrPositionLimitExceeded),
		errors.Is(err, risk.ErrNotionalLimitExceeded):
		return "risk_limit"
	default:
		return "other"
	}
}

// fills normalizes a nil slice to an empty JSON array.
func fills(fs []model.Fill) []model.Fill {
	if fs == nil {
		return []model.Fill{}
	}
	return fs
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
