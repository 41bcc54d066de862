package ratelimit

import (
	"context"
	"time"
)

// Clock is the time source used by buckets and the request executor.
// Production code uses SystemClock; tests substitute a simulated clock so
// reset windows and retry backoff can be asserted without real sleeps.
type Clock interface {
	// Now returns the current time. Buckets only compare values returned by
	// Now with each other, so the monotonic reading of time.Now is used.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d or ctx cancellation.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seconds converts a float number of seconds, as the API reports them, into
// a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
