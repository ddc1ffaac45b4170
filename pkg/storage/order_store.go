// Package storage persists order records. The order store is the single
// source of truth for an order's status; live updates are only ever published
// after the corresponding write here has completed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/meridian-labs/swapd/pkg/order"
)

// ErrNotFound is returned when no record exists for an order identifier.
var ErrNotFound = errors.New("order not found")

// Transition is one atomic status change: the scalar fields to update plus
// exactly one log event to append. TxHash and Err are applied only when
// non-empty (last-write-wins); the log append is strictly ordered.
type Transition struct {
	Status order.Status
	TxHash string
	Err    string
	Data   json.RawMessage
}

// OrderStore is the durable record of orders keyed by identifier.
// Implementations must serialize concurrent writes to the same record.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
	ApplyTransition(ctx context.Context, id string, tr Transition) (*order.Order, error)
}

// apply mutates o in place per tr. Shared by store implementations so the
// append-only log semantics live in one spot.
func apply(o *order.Order, tr Transition, now time.Time) {
	o.Status = tr.Status
	if tr.TxHash != "" {
		o.TxHash = tr.TxHash
	}
	if tr.Err != "" {
		o.Error = tr.Err
	}
	o.Logs = append(o.Logs, order.LogEvent{Status: tr.Status, Timestamp: now, Data: tr.Data})
	o.UpdatedAt = now
}
