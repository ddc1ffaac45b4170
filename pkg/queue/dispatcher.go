package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job. An error (or panic) triggers the queue's
// retry/backoff policy.
type Handler func(ctx context.Context, job Job) error

// DispatcherConfig tunes the two independent caps and the failure policy.
// Zero values fall back to the defaults below.
type DispatcherConfig struct {
	Concurrency  int           // max simultaneously in-flight jobs
	RateLimit    int           // max job starts per RateWindow
	RateWindow   time.Duration // rolling window for RateLimit
	MaxAttempts  int           // total attempts before a job is permanently failed
	BaseDelay    time.Duration // first retry delay; doubles per attempt
	MaxDelay     time.Duration // retry delay cap
	LeaseTTL     time.Duration // active-job lease; expiry marks the job stalled
	PollInterval time.Duration // scan cadence when idle
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 100
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Minute
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

// Dispatcher delivers due jobs to worker slots, enforcing the concurrency
// cap and the rolling-window rate cap simultaneously: a job can hold a free
// slot and still wait for the window to admit it.
type Dispatcher struct {
	q       *Queue
	handler Handler
	cfg     DispatcherConfig
	limiter *windowLimiter
	slots   chan struct{}
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

// NewDispatcher wires a dispatcher to a queue and a handler.
func NewDispatcher(q *Queue, handler Handler, cfg DispatcherConfig, log *zap.SugaredLogger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		q:       q,
		handler: handler,
		cfg:     cfg,
		limiter: newWindowLimiter(cfg.RateLimit, cfg.RateWindow, q.clock),
		slots:   make(chan struct{}, cfg.Concurrency),
		log:     log,
	}
}

// Run dispatches until ctx is cancelled, then waits for in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Infow("dispatcher started",
		"concurrency", d.cfg.Concurrency,
		"rate_limit", d.cfg.RateLimit,
		"rate_window", d.cfg.RateWindow,
		"max_attempts", d.cfg.MaxAttempts)

	for {
		// A slot first: a claimed job must have somewhere to run.
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		case d.slots <- struct{}{}:
		}

		rec, ok := d.awaitDue(ctx)
		if !ok {
			<-d.slots
			d.wg.Wait()
			return nil
		}

		// Rate cap second: independent of the free slot above.
		if !d.awaitRate(ctx) {
			<-d.slots
			d.wg.Wait()
			return nil
		}

		claimed, ok := d.q.claim(rec.OrderID, d.cfg.LeaseTTL)
		if !ok {
			// Record changed since the scan; the rate token is forfeit.
			<-d.slots
			continue
		}

		d.wg.Add(1)
		go d.run(ctx, claimed)
	}
}

// awaitDue blocks until a due job exists or ctx is cancelled.
func (d *Dispatcher) awaitDue(ctx context.Context) (*jobRecord, bool) {
	for {
		if rec := d.q.nextDue(); rec != nil {
			return rec, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-d.q.notify:
		case <-d.q.clock.After(d.cfg.PollInterval):
		}
	}
}

// awaitRate blocks until the rolling window admits a start.
func (d *Dispatcher) awaitRate(ctx context.Context) bool {
	for {
		wait, ok := d.limiter.reserve()
		if ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-d.q.clock.After(wait):
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, rec jobRecord) {
	defer d.wg.Done()
	defer func() { <-d.slots }()

	// Heartbeat keeps the lease alive while the handler runs; losing it
	// would let another slot treat this job as stalled.
	hbStop := make(chan struct{})
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		for {
			select {
			case <-hbStop:
				return
			case <-d.q.clock.After(d.cfg.LeaseTTL / 2):
				d.q.extendLease(rec.OrderID, d.cfg.LeaseTTL)
			}
		}
	}()

	attempt := rec.Attempts + 1
	err := d.safeHandle(ctx, rec.Job)
	close(hbStop)
	hbDone.Wait()

	if err == nil {
		d.q.complete(rec.OrderID)
		d.log.Infow("job completed", "order_id", rec.OrderID, "attempt", attempt)
		return
	}

	if attempt >= d.cfg.MaxAttempts {
		d.q.fail(rec.OrderID, err)
		d.log.Errorw("job permanently failed",
			"order_id", rec.OrderID, "attempts", attempt, "err", err)
		return
	}

	delay := Backoff(attempt-1, d.cfg.BaseDelay, d.cfg.MaxDelay)
	d.q.retry(rec.OrderID, err, delay)
	d.log.Warnw("job failed, retrying",
		"order_id", rec.OrderID, "attempt", attempt, "retry_in", delay, "err", err)
}

// safeHandle converts handler panics into errors so one bad job cannot take
// down the dispatcher.
func (d *Dispatcher) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler(ctx, job)
}
