package receiver

import "time"

// Clock abstracts the time operations behind subscription timeouts and
// speaking detection. Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback started by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// DefaultClock uses the standard library time functions.
type DefaultClock struct{}

// Now returns the current time.
func (DefaultClock) Now() time.Time { return time.Now() }

// AfterFunc calls f in its own goroutine after d.
func (DefaultClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
