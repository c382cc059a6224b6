// Package store defines the persistence interface for order and fill
// history. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
//
// The matching engine is authoritative in memory; the store is the
// queryable record behind the history endpoints.
package store

import (
	"context"

	"github.com/tradesim/exchange-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Orders ---

	// InsertOrder persists a newly accepted order.
	InsertOrder(ctx context.Context, o *model.Order) error

	// UpdateOrder records a status / filled-quantity change.
	UpdateOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// ListOrdersByUser returns all orders placed by a user, oldest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// --- Immutable fills ---

	// InsertFill appends an immutable execution record.
	InsertFill(ctx context.Context, f *model.Fill) error

	// ListFillsByUser returns all fills for a user, oldest first.
	ListFillsByUser(ctx context.Context, userID string) ([]model.Fill, error)

	// ListFillsBySymbol returns the trade tape for a symbol, oldest first.
	ListFillsBySymbol(ctx context.Context, symbol string) ([]model.Fill, error)
}
