// Package worker drives one order through the routing -> building ->
// submission -> confirmation state machine, persisting every transition
// before publishing it.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/meridian-labs/swapd/pkg/order"
	"github.com/meridian-labs/swapd/pkg/pubsub"
	"github.com/meridian-labs/swapd/pkg/queue"
	"github.com/meridian-labs/swapd/pkg/router"
	"github.com/meridian-labs/swapd/pkg/storage"
	"github.com/meridian-labs/swapd/pkg/venue"
)

// Config carries the per-job routing parameters.
type Config struct {
	SignerPubkey string
	SlippageBps  int
}

// Processor is the job handler. One processor instance is safe for
// concurrent jobs; per-order sequencing comes from the queue's guarantee of
// at most one live job per order.
type Processor struct {
	store     storage.OrderStore
	pub       pubsub.Publisher
	router    *router.Router
	submitter Submitter
	cfg       Config
	log       *zap.SugaredLogger
}

// New wires a processor.
func New(store storage.OrderStore, pub pubsub.Publisher, r *router.Router, sub Submitter, cfg Config, log *zap.SugaredLogger) *Processor {
	return &Processor{store: store, pub: pub, router: r, submitter: sub, cfg: cfg, log: log}
}

// Process runs the full state machine for one job. Any step error drives the
// order to FAILED and is returned so the queue applies its own retry policy.
func (p *Processor) Process(ctx context.Context, job queue.Job) error {
	id := job.OrderID

	if err := p.transition(ctx, id, order.StatusRouting, nil); err != nil {
		return p.failOrder(ctx, id, err)
	}

	req := venue.QuoteRequest{
		InputToken:  job.InputToken,
		OutputToken: job.OutputToken,
		Amount:      job.Amount,
		SlippageBps: p.cfg.SlippageBps,
	}
	quote, err := p.router.BestQuote(ctx, req)
	if err != nil {
		return p.failOrder(ctx, id, err)
	}

	if err := p.transition(ctx, id, order.StatusBuilding, order.BuildingInfo{
		Venue: string(quote.Venue),
		Price: quote.Price,
	}); err != nil {
		return p.failOrder(ctx, id, err)
	}

	tx, err := p.router.Transaction(ctx, quote, p.cfg.SignerPubkey)
	if err != nil {
		return p.failOrder(ctx, id, err)
	}

	if err := p.transition(ctx, id, order.StatusSubmitted, nil); err != nil {
		return p.failOrder(ctx, id, err)
	}

	txHash, err := p.submitter.Submit(ctx, tx)
	if err != nil {
		return p.failOrder(ctx, id, err)
	}

	if err := p.transition(ctx, id, order.StatusConfirmed, order.ConfirmedInfo{
		TxHash: txHash,
		Price:  quote.Price,
	}); err != nil {
		return p.failOrder(ctx, id, err)
	}

	p.log.Infow("order confirmed", "order_id", id, "venue", quote.Venue, "tx_hash", txHash)
	return nil
}

// failOrder records the FAILED transition and hands the original error back
// to the queue. If even FAILED cannot be persisted the order is stuck in its
// prior status — that is surfaced loudly, never swallowed.
func (p *Processor) failOrder(ctx context.Context, id string, cause error) error {
	p.log.Warnw("order failed", "order_id", id, "err", cause)
	if terr := p.transition(ctx, id, order.StatusFailed, order.FailedInfo{Error: cause.Error()}); terr != nil {
		p.log.Errorw("order stuck: FAILED transition not persisted",
			"order_id", id, "cause", cause, "err", terr)
		return multierr.Append(cause, terr)
	}
	return cause
}

// transition applies one persist-then-publish step. The store write must
// complete before the event goes out; a publish failure after a successful
// persist is logged and never rolled back — the store stays the source of
// truth and a subscriber recovers by re-reading it.
func (p *Processor) transition(ctx context.Context, id string, st order.Status, data order.StatusData) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", st, err)
		}
		raw = b
	}

	tr := storage.Transition{Status: st, Data: raw}
	switch d := data.(type) {
	case order.ConfirmedInfo:
		tr.TxHash = d.TxHash
	case order.FailedInfo:
		tr.Err = d.Error
	}

	if _, err := p.store.ApplyTransition(ctx, id, tr); err != nil {
		p.log.Errorw("persist transition failed",
			"order_id", id, "status", st, "err", err)
		return fmt.Errorf("persist %s: %w", st, err)
	}

	payload, err := order.UpdateEvent{OrderID: id, Status: st, Data: raw}.Encode()
	if err != nil {
		p.log.Warnw("encode update failed", "order_id", id, "status", st, "err", err)
		return nil
	}
	if err := p.pub.Publish(ctx, pubsub.ChannelFor(id), payload); err != nil {
		p.log.Warnw("publish update failed", "order_id", id, "status", st, "err", err)
	}
	return nil
}
