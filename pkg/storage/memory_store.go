package storage

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-labs/swapd/pkg/order"
)

// MemoryOrderStore is an in-process OrderStore with the same serialization
// guarantees as the pebble store. Used in tests and as a base for fault
// injection; not durable.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

// NewMemoryOrderStore creates an empty in-memory store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*order.Order)}
}

func (s *MemoryOrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryOrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryOrderStore) ApplyTransition(_ context.Context, id string, tr Transition) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	apply(o, tr, time.Now().UTC())
	return o.Clone(), nil
}

var _ OrderStore = (*MemoryOrderStore)(nil)
