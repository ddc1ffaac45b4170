package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startDispatcher(t *testing.T, q *Queue, h Handler, cfg DispatcherConfig) context.CancelFunc {
	t.Helper()
	d := NewDispatcher(q, h, cfg, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})
	return cancel
}

func TestDispatcherRunsEnqueuedJob(t *testing.T) {
	q := openTestQueue(t)

	got := make(chan Job, 1)
	startDispatcher(t, q, func(_ context.Context, j Job) error {
		got <- j
		return nil
	}, DispatcherConfig{PollInterval: 5 * time.Millisecond})

	require.NoError(t, q.Enqueue(context.Background(), testJob("ord-1")))

	select {
	case j := <-got:
		require.Equal(t, "ord-1", j.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("job never dispatched")
	}

	require.Eventually(t, func() bool {
		rec, ok := q.getRecord("ord-1")
		return ok && rec.State == stateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherConcurrencyCap(t *testing.T) {
	q := openTestQueue(t)

	const maxConcurrent = 10
	const jobs = 25

	var inFlight, peak int64
	release := make(chan struct{})
	startDispatcher(t, q, func(_ context.Context, _ Job) error {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt64(&inFlight, -1)
		return nil
	}, DispatcherConfig{
		Concurrency:  maxConcurrent,
		RateLimit:    1000,
		PollInterval: 5 * time.Millisecond,
	})

	ctx := context.Background()
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, testJob(fmt.Sprintf("ord-%02d", i))))
	}

	// All slots fill, and no more: the 11th job waits for a slot.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&inFlight) == maxConcurrent
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, maxConcurrent, atomic.LoadInt64(&inFlight))

	close(release)

	require.Eventually(t, func() bool {
		for i := 0; i < jobs; i++ {
			rec, ok := q.getRecord(fmt.Sprintf("ord-%02d", i))
			if !ok || rec.State != stateCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxConcurrent))
}

func TestDispatcherRateCap(t *testing.T) {
	q := openTestQueue(t)

	const limit = 3
	window := 400 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time
	startDispatcher(t, q, func(_ context.Context, _ Job) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}, DispatcherConfig{
		Concurrency:  10,
		RateLimit:    limit,
		RateWindow:   window,
		PollInterval: 5 * time.Millisecond,
	})

	ctx := context.Background()
	const jobs = limit + 1
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, testJob(fmt.Sprintf("ord-%d", i))))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) == jobs
	}, 5*time.Second, 10*time.Millisecond)

	// The first three start immediately; the fourth waits for the rolling
	// window to admit it.
	mu.Lock()
	defer mu.Unlock()
	gap := starts[limit].Sub(starts[0])
	require.GreaterOrEqual(t, gap, window-50*time.Millisecond,
		"start past the cap must wait out the window")
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	q := openTestQueue(t)

	var mu sync.Mutex
	var attempts []time.Time
	startDispatcher(t, q, func(_ context.Context, _ Job) error {
		mu.Lock()
		n := len(attempts)
		attempts = append(attempts, time.Now())
		mu.Unlock()
		if n < 3 {
			return errors.New("venue temporarily down")
		}
		return nil
	}, DispatcherConfig{
		MaxAttempts:  5,
		BaseDelay:    40 * time.Millisecond,
		MaxDelay:     time.Second,
		PollInterval: 5 * time.Millisecond,
	})

	require.NoError(t, q.Enqueue(context.Background(), testJob("ord-1")))

	require.Eventually(t, func() bool {
		rec, ok := q.getRecord("ord-1")
		return ok && rec.State == stateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 4, "fails three times, succeeds on the fourth")

	// Delays double: ~40ms, ~80ms, ~160ms.
	for i := 1; i < len(attempts); i++ {
		gap := attempts[i].Sub(attempts[i-1])
		want := Backoff(i-1, 40*time.Millisecond, time.Second)
		require.GreaterOrEqual(t, gap, want-10*time.Millisecond, "retry %d fired early", i)
	}

	rec, ok := q.getRecord("ord-1")
	require.True(t, ok)
	require.Equal(t, 3, rec.Attempts, "only failed attempts are counted")
	require.Empty(t, rec.LastError)
}

func TestDispatcherFailsAfterMaxAttempts(t *testing.T) {
	q := openTestQueue(t)

	var calls int64
	startDispatcher(t, q, func(_ context.Context, _ Job) error {
		atomic.AddInt64(&calls, 1)
		return errors.New("permanent venue failure")
	}, DispatcherConfig{
		MaxAttempts:  3,
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})

	require.NoError(t, q.Enqueue(context.Background(), testJob("ord-1")))

	require.Eventually(t, func() bool {
		rec, ok := q.getRecord("ord-1")
		return ok && rec.State == stateFailed
	}, 5*time.Second, 10*time.Millisecond)

	// No further attempts once the job is permanently failed.
	n := atomic.LoadInt64(&calls)
	require.EqualValues(t, 3, n)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, n, atomic.LoadInt64(&calls))

	rec, _ := q.getRecord("ord-1")
	require.Equal(t, 3, rec.Attempts)
	require.Equal(t, "permanent venue failure", rec.LastError)
}

func TestDispatcherRecoversFromHandlerPanic(t *testing.T) {
	q := openTestQueue(t)

	var calls int64
	startDispatcher(t, q, func(_ context.Context, _ Job) error {
		if atomic.AddInt64(&calls, 1) == 1 {
			panic("bad payload")
		}
		return nil
	}, DispatcherConfig{
		MaxAttempts:  3,
		BaseDelay:    10 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})

	require.NoError(t, q.Enqueue(context.Background(), testJob("ord-1")))

	require.Eventually(t, func() bool {
		rec, ok := q.getRecord("ord-1")
		return ok && rec.State == stateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestDispatcherWaitsForInFlightOnShutdown(t *testing.T) {
	q := openTestQueue(t)

	started := make(chan struct{})
	var finished int64
	d := NewDispatcher(q, func(_ context.Context, _ Job) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt64(&finished, 1)
		return nil
	}, DispatcherConfig{PollInterval: 5 * time.Millisecond}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = d.Run(ctx)
	}()

	require.NoError(t, q.Enqueue(context.Background(), testJob("ord-1")))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.EqualValues(t, 1, atomic.LoadInt64(&finished), "Run must wait for in-flight jobs")
}
