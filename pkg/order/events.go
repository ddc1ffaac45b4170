package order

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// StatusData is the closed set of per-status update payloads. The status on
// the envelope discriminates which variant is carried; statuses without extra
// information (ROUTING, SUBMITTED) carry none.
type StatusData interface {
	statusData()
}

// BuildingInfo accompanies the BUILDING transition: which venue won the
// route and at what price.
type BuildingInfo struct {
	Venue string          `json:"venue"`
	Price decimal.Decimal `json:"price"`
}

// ConfirmedInfo accompanies the CONFIRMED transition.
type ConfirmedInfo struct {
	TxHash string          `json:"txHash"`
	Price  decimal.Decimal `json:"price"`
}

// FailedInfo accompanies the FAILED transition.
type FailedInfo struct {
	Error string `json:"error"`
}

func (BuildingInfo) statusData()  {}
func (ConfirmedInfo) statusData() {}
func (FailedInfo) statusData()    {}

// UpdateEvent is the transient pub/sub message fanned out to subscribers.
// It is not durable itself; every published event corresponds to exactly one
// log append that completed strictly before publication.
type UpdateEvent struct {
	OrderID string          `json:"orderId"`
	Status  Status          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Encode marshals the event for the wire. Subscribers receive it verbatim.
func (e UpdateEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
