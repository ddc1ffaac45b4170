package queue

import "time"

// Backoff returns the delay before retry number retryCount (0-based):
// base * 2^retryCount, capped at max.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		return base
	}
	// 2^30 seconds already dwarfs any sane cap; avoid shift overflow.
	if retryCount > 30 {
		return max
	}
	d := base * time.Duration(1<<retryCount)
	if d > max || d <= 0 {
		return max
	}
	return d
}
