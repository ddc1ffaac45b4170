// Package router aggregates quotes from every configured venue adapter and
// selects the best execution.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-labs/swapd/pkg/venue"
)

var (
	// ErrNoValidQuotes means every adapter failed or returned an unusable quote.
	ErrNoValidQuotes = errors.New("no valid quotes")
	// ErrUnknownVenue means a quote's venue tag matches no registered adapter.
	ErrUnknownVenue = errors.New("no adapter for venue")
)

// Router fans a quote request out to all adapters and picks the winner.
// Registration order matters: it breaks outAmount ties deterministically.
type Router struct {
	adapters []venue.Adapter
	log      *zap.SugaredLogger
}

// New creates a Router over the given adapters.
func New(log *zap.SugaredLogger, adapters ...venue.Adapter) *Router {
	return &Router{adapters: adapters, log: log}
}

// BestQuote queries every adapter concurrently, waits for all of them (a slow
// adapter is never silently dropped; timeouts are configured per adapter and
// come back as failed quotes), filters unusable quotes, and returns the one
// with the strictly greatest outAmount. Ties go to the first-registered
// adapter. Returns ErrNoValidQuotes when nothing usable remains.
func (r *Router) BestQuote(ctx context.Context, req venue.QuoteRequest) (venue.Quote, error) {
	quotes := make([]venue.Quote, len(r.adapters))
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a venue.Adapter) {
			defer wg.Done()
			quotes[i] = a.Quote(ctx, req)
		}(i, a)
	}
	wg.Wait()

	best := -1
	for i, q := range quotes {
		if !q.Valid() {
			r.log.Debugw("quote discarded",
				"venue", r.adapters[i].ID(), "err", q.Err, "out_amount", q.OutAmount)
			continue
		}
		if best < 0 || q.OutAmount.GreaterThan(quotes[best].OutAmount) {
			best = i
		}
	}
	if best < 0 {
		return venue.Quote{}, ErrNoValidQuotes
	}
	return quotes[best], nil
}

// Transaction builds the swap transaction with the adapter that produced the
// quote. It never falls back to a different adapter: an unmatched venue tag
// is an error.
func (r *Router) Transaction(ctx context.Context, q venue.Quote, signerPubkey string) ([]byte, error) {
	for _, a := range r.adapters {
		if a.ID() == q.Venue {
			return a.BuildTransaction(ctx, q, signerPubkey)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, q.Venue)
}
