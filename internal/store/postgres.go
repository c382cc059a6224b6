package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, symbol, side, kind, limit_price, quantity, filled_quantity, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.Symbol, string(o.Side), string(o.Kind),
		o.LimitPrice.String(), o.Quantity, o.FilledQuantity,
		string(o.Status), o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, filled_quantity = $3 WHERE id = $1`,
		o.ID, string(o.Status), o.FilledQuantity,
	)
	return err
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, symbol, side, kind,
		        limit_price::TEXT, quantity, filled_quantity, status, created_at
		 FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side, kind,
		        limit_price::TEXT, quantity, filled_quantity, status, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) InsertFill(ctx context.Context, f *model.Fill) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fills (id, order_id, user_id, symbol, side, price, quantity, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8)`,
		f.ID, f.OrderID, f.UserID, f.Symbol, string(f.Side),
		f.Price.String(), f.Quantity, f.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListFillsByUser(ctx context.Context, userID string) ([]model.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, user_id, symbol, side, price::TEXT, quantity, timestamp
		 FROM fills WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

func (s *PostgresStore) ListFillsBySymbol(ctx context.Context, symbol string) ([]model.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, user_id, symbol, side, price::TEXT, quantity, timestamp
		 FROM fills WHERE symbol = $1 ORDER BY timestamp`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

// pgxRow abstracts QueryRow results and Query rows for scanning.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanOrder(row pgxRow) (*model.Order, error) {
	var o model.Order
	var side, kind, status, limitPrice string

	if err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &kind,
		&limitPrice, &o.Quantity, &o.FilledQuantity, &status, &o.CreatedAt); err != nil {
		return nil, err
	}

	o.Side = model.Side(side)
	o.Kind = model.Kind(kind)
	o.Status = model.Status(status)
	o.LimitPrice, _ = decimal.NewFromString(limitPrice)
	return &o, nil
}

func scanFills(rows pgxRows) ([]model.Fill, error) {
	var fills []model.Fill
	for rows.Next() {
		var f model.Fill
		var side, price string

		if err := rows.Scan(&f.ID, &f.OrderID, &f.UserID, &f.Symbol, &side,
			&price, &f.Quantity, &f.Timestamp); err != nil {
			return nil, err
		}

		f.Side = model.Side(side)
		f.Price, _ = decimal.NewFromString(price)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
