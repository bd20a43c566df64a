package media

import (
	"context"
	"io"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

// AccessUnit is one encoded frame. Timestamp and Length are counted in
// ticks of TimeBase.
type AccessUnit struct {
	Data      []byte
	Timestamp int64
	Length    int64
	TimeBase  Rational
	Keyframe  bool
}

// PTS returns the presentation timestamp.
func (u AccessUnit) PTS() time.Duration {
	return u.TimeBase.Duration(u.Timestamp)
}

// Duration returns the nominal frame duration.
func (u AccessUnit) Duration() time.Duration {
	return u.TimeBase.Duration(u.Length)
}

// PTSMillis returns the presentation timestamp in milliseconds.
func (u AccessUnit) PTSMillis() float64 {
	return u.TimeBase.Millis(u.Timestamp)
}

// DurationMillis returns the frame duration in milliseconds.
func (u AccessUnit) DurationMillis() float64 {
	return u.TimeBase.Millis(u.Length)
}

// Source produces access units in presentation order. Next returns io.EOF
// when the source is exhausted and ctx.Err() when cancelled.
type Source interface {
	Next(ctx context.Context) (AccessUnit, error)
}

// SliceSource replays a fixed list of access units.
type SliceSource struct {
	units []AccessUnit
	pos   int
}

// NewSliceSource returns a source yielding units in order.
func NewSliceSource(units []AccessUnit) *SliceSource {
	return &SliceSource{units: units}
}

// Next returns the next unit or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (AccessUnit, error) {
	if err := ctx.Err(); err != nil {
		return AccessUnit{}, err
	}
	if s.pos >= len(s.units) {
		return AccessUnit{}, io.EOF
	}
	u := s.units[s.pos]
	s.pos++
	return u, nil
}

// SampleSource adapts a channel of pion media samples, as produced by live
// encoders, to a Source. Presentation timestamps accumulate the sample
// durations in microseconds. A closed channel ends the source.
type SampleSource struct {
	samples <-chan media.Sample
	pts     int64
}

// sampleTimeBase is the microsecond time base used for samples.
var sampleTimeBase = Rational{Num: 1, Den: 1000000}

// NewSampleSource returns a source reading from samples.
func NewSampleSource(samples <-chan media.Sample) *SampleSource {
	return &SampleSource{samples: samples}
}

// Next blocks until a sample arrives, the channel closes or ctx ends.
func (s *SampleSource) Next(ctx context.Context) (AccessUnit, error) {
	select {
	case <-ctx.Done():
		return AccessUnit{}, ctx.Err()
	case sample, ok := <-s.samples:
		if !ok {
			return AccessUnit{}, io.EOF
		}
		length := sample.Duration.Microseconds()
		u := AccessUnit{
			Data:      sample.Data,
			Timestamp: s.pts,
			Length:    length,
			TimeBase:  sampleTimeBase,
		}
		s.pts += length
		return u, nil
	}
}
