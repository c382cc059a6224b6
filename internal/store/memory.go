package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradesim/exchange-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
	seq    []string // order IDs in insertion order
	fills  []model.Fill
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*model.Order),
	}
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}

	// Store a copy to avoid external mutation.
	copy := *o
	s.orders[o.ID] = &copy
	s.seq = append(s.seq, o.ID)
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s not found", o.ID)
	}
	stored.Status = o.Status
	stored.FilledQuantity = o.FilledQuantity
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, id := range s.seq {
		if o := s.orders[id]; o.UserID == userID {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertFill(_ context.Context, f *model.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills = append(s.fills, *f)
	return nil
}

func (s *MemoryStore) ListFillsByUser(_ context.Context, userID string) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Fill
	for _, f := range s.fills {
		if f.UserID == userID {
			result = append(result, f)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListFillsBySymbol(_ context.Context, symbol string) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Fill
	for _, f := range s.fills {
		if f.Symbol == symbol {
			result = append(result, f)
		}
	}
	return result, nil
}
