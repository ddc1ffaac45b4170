package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. The only legal paths are
// PENDING -> ROUTING -> BUILDING -> SUBMITTED -> CONFIRMED, or FAILED from
// any non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRouting   Status = "ROUTING"
	StatusBuilding  Status = "BUILDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// next maps each non-terminal status to its successor on the success path.
var next = map[Status]Status{
	StatusPending:   StatusRouting,
	StatusRouting:   StatusBuilding,
	StatusBuilding:  StatusSubmitted,
	StatusSubmitted: StatusConfirmed,
}

// CanTransitionTo reports whether moving from s to to is a legal step.
// FAILED is reachable from any non-terminal state; no step may be skipped.
func (s Status) CanTransitionTo(to Status) bool {
	if s.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return next[s] == to
}

// Type classifies an order. Only market orders exist today.
type Type string

const TypeMarket Type = "MARKET"

// LogEvent is one entry in an order's append-only status history.
type LogEvent struct {
	Status    Status          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Order is one user-requested swap tracked through its lifecycle. It is
// created by intake in PENDING and mutated only by the processor that owns
// its job. Logs never shrink or reorder.
type Order struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	InputToken  string          `json:"inputToken"`
	OutputToken string          `json:"outputToken"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	TxHash      string          `json:"txHash,omitempty"`
	Error       string          `json:"error,omitempty"`
	Logs        []LogEvent      `json:"logs"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// New creates a PENDING market order with a fresh identifier.
func New(inputToken, outputToken string, amount decimal.Decimal) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:          uuid.NewString(),
		Type:        TypeMarket,
		InputToken:  inputToken,
		OutputToken: outputToken,
		Amount:      amount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so callers can hand out records without
// exposing the store's internal slice.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Logs = make([]LogEvent, len(o.Logs))
	copy(cp.Logs, o.Logs)
	return &cp
}
