package api

// Request/response types for REST endpoints and WebSocket messages

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-labs/swapd/pkg/order"
)

// ==============================
// REST Types
// ==============================

// ExecuteOrderRequest submits a new swap order.
type ExecuteOrderRequest struct {
	InputToken  string          `json:"inputToken"`
	OutputToken string          `json:"outputToken"`
	Amount      decimal.Decimal `json:"amount"`
}

// ExecuteOrderResponse acknowledges an accepted order.
type ExecuteOrderResponse struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// wsSubscribeRequest is the client's first frame: which order to observe.
type wsSubscribeRequest struct {
	OrderID string `json:"orderId"`
}

// OrderSnapshot is the current-state frame sent once per subscription,
// before any live events.
type OrderSnapshot struct {
	OrderID string           `json:"orderId"`
	Status  order.Status     `json:"status"`
	TxHash  string           `json:"txHash,omitempty"`
	Error   string           `json:"error,omitempty"`
	Logs    []order.LogEvent `json:"logs,omitempty"`
}

// wsErrorFrame reports a subscription problem (e.g. unknown order).
type wsErrorFrame struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}
