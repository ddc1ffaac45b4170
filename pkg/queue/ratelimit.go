package queue

import (
	"sync"
	"time"
)

// windowLimiter admits at most max job starts per rolling window. Unlike a
// token bucket there is no burst above the cap: the 101st start in a
// 100/60s window waits until the oldest recorded start ages out.
type windowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time // ascending
	clock  Clock
}

func newWindowLimiter(max int, window time.Duration, clock Clock) *windowLimiter {
	return &windowLimiter{max: max, window: window, clock: clock}
}

// reserve records a start if the window admits one. Otherwise it returns how
// long until the window next admits a start.
func (l *windowLimiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	trimmed := l.starts[:0]
	for _, t := range l.starts {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	l.starts = trimmed

	if len(l.starts) < l.max {
		l.starts = append(l.starts, now)
		return 0, true
	}
	return l.starts[0].Add(l.window).Sub(now), false
}
