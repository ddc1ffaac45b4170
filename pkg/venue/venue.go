// Package venue defines the execution-venue capability boundary: pricing a
// swap and building an opaque transaction payload for a previously returned
// quote. Adapters wrap one venue each and are polymorphic over this single
// interface so the router works with any number of them.
package venue

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ID tags which adapter produced a quote.
type ID string

const (
	Raydium ID = "RAYDIUM"
	Meteora ID = "METEORA"
)

// QuoteRequest describes one swap to price. Amount is in UI units
// (e.g. 1.5 SOL); SlippageBps is the tolerance in basis points.
type QuoteRequest struct {
	InputToken  string
	OutputToken string
	Amount      decimal.Decimal
	SlippageBps int
}

// Quote is one venue's priced offer. A quote with Err set or a non-positive
// OutAmount is unusable and must never be selected. Payload is the venue's
// own quote blob, opaque to everything but the adapter that produced it.
type Quote struct {
	Venue     ID              `json:"venue"`
	Price     decimal.Decimal `json:"price"`
	OutAmount decimal.Decimal `json:"outAmount"`
	Payload   json.RawMessage `json:"-"`
	Err       string          `json:"error,omitempty"`
}

// Valid reports whether the quote is eligible for selection.
func (q Quote) Valid() bool {
	return q.Err == "" && q.OutAmount.IsPositive()
}

// failedQuote is the uniform shape for expected failure modes (no liquidity,
// network error, timeout): error recorded, price zeroed, never an exception.
func failedQuote(v ID, err error) Quote {
	return Quote{Venue: v, Price: decimal.Zero, OutAmount: decimal.Zero, Err: err.Error()}
}

// Adapter is the capability set one venue integration must provide.
//
// Quote never returns a Go error: expected failures come back as a Quote
// with Err set so the router can filter them. BuildTransaction is only ever
// called with a Quote this same adapter returned; handing it a foreign quote
// is a usage-contract violation and fails loudly.
type Adapter interface {
	ID() ID
	Quote(ctx context.Context, req QuoteRequest) Quote
	BuildTransaction(ctx context.Context, q Quote, signerPubkey string) ([]byte, error)
}
