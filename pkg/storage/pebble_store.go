package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/meridian-labs/swapd/pkg/order"
)

// Open opens (creating if needed) the pebble database backing the order
// store and the job queue. One process owns the database at a time.
func Open(path string) (*pebble.DB, error) {
	return pebble.Open(path, &pebble.Options{})
}

// PebbleOrderStore keeps one JSON-encoded order record per key. Writes are
// synced; read-modify-write on a record is serialized by a striped mutex so
// even pathological duplicate dispatch cannot interleave log appends.
type PebbleOrderStore struct {
	db    *pebble.DB
	locks [64]sync.Mutex
}

// NewPebbleOrderStore wraps an already-open pebble database.
func NewPebbleOrderStore(db *pebble.DB) *PebbleOrderStore {
	return &PebbleOrderStore{db: db}
}

// keys: o:<order-id>
func orderKey(id string) []byte { return append([]byte("o:"), id...) }

func (s *PebbleOrderStore) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// Create persists a new order record.
func (s *PebbleOrderStore) Create(_ context.Context, o *order.Order) error {
	mu := s.lock(o.ID)
	mu.Lock()
	defer mu.Unlock()

	data, err := encodeJSON(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// Get loads an order record, or ErrNotFound.
func (s *PebbleOrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	val, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	defer closer.Close()

	var o order.Order
	if err := decodeJSON(val, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// ApplyTransition atomically updates status/txHash/error and appends one log
// event. The write must be durable before the caller publishes anything.
func (s *PebbleOrderStore) ApplyTransition(_ context.Context, id string, tr Transition) (*order.Order, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	val, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	var o order.Order
	decErr := decodeJSON(val, &o)
	closer.Close()
	if decErr != nil {
		return nil, fmt.Errorf("decode order: %w", decErr)
	}

	apply(&o, tr, time.Now().UTC())

	data, err := encodeJSON(&o)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	if err := s.db.Set(orderKey(id), data, pebble.Sync); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	return &o, nil
}

var _ OrderStore = (*PebbleOrderStore)(nil)
