package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradesim/exchange-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.Order) error {
	if err := s.primary.InsertOrder(ctx, o); err != nil {
		return err
	}
	s.cacheOrder(ctx, o)
	return nil
}

func (s *CachedStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	if err := s.primary.UpdateOrder(ctx, o); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the fresh row.
	s.rdb.Del(ctx, orderKey(o.ID))
	return nil
}

func (s *CachedStore) InsertFill(ctx context.Context, f *model.Fill) error {
	if err := s.primary.InsertFill(ctx, f); err != nil {
		return err
	}
	// Invalidate the symbol tape for this fill.
	s.rdb.Del(ctx, tapeKey(f.Symbol))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	data, err := s.rdb.Get(ctx, orderKey(id)).Bytes()
	if err == nil {
		var o model.Order
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	// Cache miss: read from primary.
	o, err := s.primary.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, o)
	return o, nil
}

func (s *CachedStore) ListFillsBySymbol(ctx context.Context, symbol string) ([]model.Fill, error) {
	data, err := s.rdb.Get(ctx, tapeKey(symbol)).Bytes()
	if err == nil {
		var fills []model.Fill
		if json.Unmarshal(data, &fills) == nil {
			return fills, nil
		}
	}

	// Cache miss.
	fills, err := s.primary.ListFillsBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(fills); err == nil {
		s.rdb.Set(ctx, tapeKey(symbol), data, s.ttl)
	}
	return fills, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.primary.ListOrdersByUser(ctx, userID)
}

func (s *CachedStore) ListFillsByUser(ctx context.Context, userID string) ([]model.Fill, error) {
	return s.primary.ListFillsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheOrder(ctx context.Context, o *model.Order) {
	if data, err := json.Marshal(o); err == nil {
		s.rdb.Set(ctx, orderKey(o.ID), data, s.ttl)
	}
}

func orderKey(id string) string    { return fmt.Sprintf("order:%s", id) }
func tapeKey(symbol string) string { return fmt.Sprintf("tape:%s", symbol) }
