// Package queue is a durable, bounded-concurrency, rate-limited work queue
// carrying one job per order. Job records live in pebble next to the order
// records; enqueue returns only after the record is synced.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian-labs/swapd/pkg/storage"
)

// ErrDuplicateJob is returned when an order already has a waiting or active
// job. This is the explicit per-order mutual-exclusion guard: two processor
// runs can never race on the same order record.
var ErrDuplicateJob = errors.New("order already has a live job")

// Job is one unit of queued work: process one order.
type Job struct {
	OrderID     string          `json:"orderId"`
	InputToken  string          `json:"inputToken"`
	OutputToken string          `json:"outputToken"`
	Amount      decimal.Decimal `json:"amount"`
}

type jobState string

const (
	stateWaiting   jobState = "waiting"
	stateActive    jobState = "active"
	stateCompleted jobState = "completed"
	stateFailed    jobState = "failed"
)

// jobRecord is the durable bookkeeping around a job. The queue's failure
// accounting is independent of order status: a permanently failed job does
// not re-drive the order, whose FAILED transition the handler already applied.
type jobRecord struct {
	Job
	State      jobState  `json:"state"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	NextRunAt  time.Time `json:"nextRunAt"`
	LeaseUntil time.Time `json:"leaseUntil,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

func (r *jobRecord) live() bool {
	return r.State == stateWaiting || r.State == stateActive
}

const jobPrefix = "q:"

func jobKey(orderID string) []byte { return append([]byte(jobPrefix), orderID...) }

func encodeRecord(r *jobRecord) ([]byte, error) { return json.Marshal(r) }
func decodeRecord(b []byte, r *jobRecord) error { return json.Unmarshal(b, r) }

// Queue owns the job records. A single mutex serializes all record
// mutation: job traffic is tiny next to order writes, and one writer keeps
// claim/retry/reclaim trivially race-free.
type Queue struct {
	db     *pebble.DB
	log    *zap.SugaredLogger
	clock  Clock
	notify chan struct{}
	mu     sync.Mutex
}

// New wraps an already-open pebble database.
func New(db *pebble.DB, log *zap.SugaredLogger) *Queue {
	return &Queue{db: db, log: log, clock: RealClock{}, notify: make(chan struct{}, 1)}
}

// Enqueue durably accepts a job and returns. A waiting or active job for the
// same order is rejected with ErrDuplicateJob; completed and failed records
// may be superseded.
func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec, ok := q.getRecord(job.OrderID); ok && rec.live() {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.OrderID)
	}
	now := q.clock.Now().UTC()
	rec := jobRecord{Job: job, State: stateWaiting, EnqueuedAt: now, NextRunAt: now}
	if err := q.putRecord(&rec, pebble.Sync); err != nil {
		return err
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// nextDue returns the waiting job with the earliest due NextRunAt, if any.
// While scanning it also reclaims stalled jobs: an active record whose lease
// expired belongs to a worker that died mid-job and goes back to waiting.
func (q *Queue) nextDue() *jobRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var due *jobRecord

	iter, err := q.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(jobPrefix),
		UpperBound: storage.KeyUpperBound([]byte(jobPrefix)),
	})
	if err != nil {
		q.log.Errorw("queue scan failed", "err", err)
		return nil
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec jobRecord
		if err := decodeRecord(iter.Value(), &rec); err != nil {
			q.log.Errorw("corrupt job record skipped", "key", string(iter.Key()), "err", err)
			continue
		}
		if rec.State == stateActive && rec.LeaseUntil.Before(now) {
			rec.State = stateWaiting
			rec.NextRunAt = now
			rec.LeaseUntil = time.Time{}
			if err := q.putRecord(&rec, pebble.Sync); err != nil {
				q.log.Errorw("stalled job requeue failed", "order_id", rec.OrderID, "err", err)
				continue
			}
			q.log.Warnw("job lease expired, requeued", "order_id", rec.OrderID, "attempts", rec.Attempts)
		}
		if rec.State != stateWaiting || rec.NextRunAt.After(now) {
			continue
		}
		if due == nil || rec.NextRunAt.Before(due.NextRunAt) {
			cp := rec
			due = &cp
		}
	}
	return due
}

// claim moves a due waiting job to active under a lease. Returns false if
// the record changed since it was scanned.
func (q *Queue) claim(orderID string, leaseTTL time.Duration) (jobRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.getRecord(orderID)
	if !ok || rec.State != stateWaiting || rec.NextRunAt.After(q.clock.Now()) {
		return jobRecord{}, false
	}
	rec.State = stateActive
	rec.LeaseUntil = q.clock.Now().Add(leaseTTL)
	if err := q.putRecord(&rec, pebble.Sync); err != nil {
		q.log.Errorw("job claim failed", "order_id", orderID, "err", err)
		return jobRecord{}, false
	}
	return rec, true
}

// extendLease is the heartbeat for a running job.
func (q *Queue) extendLease(orderID string, leaseTTL time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.getRecord(orderID)
	if !ok || rec.State != stateActive {
		return
	}
	rec.LeaseUntil = q.clock.Now().Add(leaseTTL)
	if err := q.putRecord(&rec, pebble.NoSync); err != nil {
		q.log.Warnw("lease extension failed", "order_id", orderID, "err", err)
	}
}

// complete marks a job done.
func (q *Queue) complete(orderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.getRecord(orderID)
	if !ok {
		return
	}
	rec.State = stateCompleted
	rec.LeaseUntil = time.Time{}
	rec.LastError = ""
	if err := q.putRecord(&rec, pebble.Sync); err != nil {
		q.log.Errorw("job completion write failed", "order_id", orderID, "err", err)
	}
}

// retry schedules another attempt after delay.
func (q *Queue) retry(orderID string, handlerErr error, delay time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.getRecord(orderID)
	if !ok {
		return 0
	}
	rec.Attempts++
	rec.State = stateWaiting
	rec.NextRunAt = q.clock.Now().Add(delay)
	rec.LeaseUntil = time.Time{}
	rec.LastError = handlerErr.Error()
	if err := q.putRecord(&rec, pebble.Sync); err != nil {
		q.log.Errorw("job retry write failed", "order_id", orderID, "err", err)
	}
	return rec.Attempts
}

// fail marks a job permanently failed after exhausting its attempts.
func (q *Queue) fail(orderID string, handlerErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.getRecord(orderID)
	if !ok {
		return
	}
	rec.Attempts++
	rec.State = stateFailed
	rec.LeaseUntil = time.Time{}
	rec.LastError = handlerErr.Error()
	if err := q.putRecord(&rec, pebble.Sync); err != nil {
		q.log.Errorw("job failure write failed", "order_id", orderID, "err", err)
	}
}

func (q *Queue) getRecord(orderID string) (jobRecord, bool) {
	val, closer, err := q.db.Get(jobKey(orderID))
	if err == pebble.ErrNotFound {
		return jobRecord{}, false
	}
	if err != nil {
		q.log.Errorw("job record read failed", "order_id", orderID, "err", err)
		return jobRecord{}, false
	}
	defer closer.Close()

	var rec jobRecord
	if err := decodeRecord(val, &rec); err != nil {
		q.log.Errorw("job record decode failed", "order_id", orderID, "err", err)
		return jobRecord{}, false
	}
	return rec, true
}

func (q *Queue) putRecord(rec *jobRecord, opts *pebble.WriteOptions) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.db.Set(jobKey(rec.OrderID), data, opts); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}
