package media

import (
	"fmt"
	"time"
)

// Rational is a fraction Num/Den, used for time bases and frame rates.
type Rational struct {
	Num int64
	Den int64
}

// Common time bases.
var (
	// TimeBaseMillisecond counts milliseconds.
	TimeBaseMillisecond = Rational{Num: 1, Den: 1000}
	// TimeBaseOpus counts 48 kHz samples.
	TimeBaseOpus = Rational{Num: 1, Den: 48000}
	// TimeBaseVideo counts 90 kHz ticks.
	TimeBaseVideo = Rational{Num: 1, Den: 90000}
)

// Valid reports whether both components are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Float returns the fraction as a float64.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Inverse returns Den/Num.
func (r Rational) Inverse() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Millis converts ticks of time base r to milliseconds.
func (r Rational) Millis(ticks int64) float64 {
	return float64(ticks) * r.Float() * 1000
}

// Duration converts ticks of time base r to a time.Duration, rounding to
// the nearest nanosecond.
func (r Rational) Duration(ticks int64) time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(float64(ticks)*r.Float()*float64(time.Second) + 0.5)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
