package pacing

import (
	"context"
	"time"
)

// Clock abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultClock uses the standard library time functions.
type DefaultClock struct{}

// Now returns the current time.
func (DefaultClock) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Sleep waits on a timer that is released when ctx ends.
func (DefaultClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
