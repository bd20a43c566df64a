package pacing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/voicestream/av/media"
	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to or when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) sleepMillis() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.sleeps))
	for i, d := range c.sleeps {
		out[i] = millis(d)
	}
	return out
}

// recordingSender records frames and runs an optional hook per send.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	hook   func(n int) error
}

func (r *recordingSender) SendFrame(frame []byte, _ time.Duration) error {
	r.mu.Lock()
	n := len(r.frames)
	r.frames = append(r.frames, frame)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// audioUnits returns n consecutive 20ms Opus units.
func audioUnits(n int) []media.AccessUnit {
	units := make([]media.AccessUnit, n)
	for i := range units {
		units[i] = media.AccessUnit{
			Data:      []byte{byte(i)},
			Timestamp: int64(i * 960),
			Length:    960,
			TimeBase:  media.TimeBaseOpus,
		}
	}
	return units
}

func msUnit(pts int64) media.AccessUnit {
	return media.AccessUnit{Data: []byte{0x01}, Timestamp: pts, Length: 20, TimeBase: media.TimeBaseMillisecond}
}

func newTestStream(t *testing.T, kind Kind, sender Sender, clock Clock, mutate func(*Options)) *Stream {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = clock
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewStream(kind, sender, opts)
	require.NoError(t, err)
	return s
}

func assertMillis(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 0.001, "sleep %d", i)
	}
}

func TestNewStreamRejectsNilSender(t *testing.T) {
	_, err := NewStream(KindAudio, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNilSender)
}

func TestStreamPacing(t *testing.T) {
	tests := []struct {
		name   string
		hook   func(clock *fakeClock) func(int) error
		sleeps []float64
	}{
		{
			name:   "instant sends sleep one frame",
			hook:   func(*fakeClock) func(int) error { return nil },
			sleeps: []float64{20, 20, 20, 20},
		},
		{
			name: "send time is subtracted",
			hook: func(c *fakeClock) func(int) error {
				return func(int) error { c.Advance(5 * time.Millisecond); return nil }
			},
			sleeps: []float64{15, 15, 15, 15},
		},
		{
			name: "late frame is caught up",
			hook: func(c *fakeClock) func(int) error {
				return func(n int) error {
					if n == 1 {
						c.Advance(30 * time.Millisecond)
					}
					return nil
				}
			},
			sleeps: []float64{20, 10, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			sender := &recordingSender{hook: tt.hook(clock)}
			s := newTestStream(t, KindAudio, sender, clock, nil)

			require.NoError(t, s.Run(context.Background(), media.NewSliceSource(audioUnits(4))))
			assert.Equal(t, 4, sender.count())
			assertMillis(t, tt.sleeps, clock.sleepMillis())

			pts, ok := s.PTS()
			assert.True(t, ok)
			assert.InDelta(t, 60, pts, 0.001)
			assert.True(t, s.Ended())
		})
	}
}

func TestNoSleepToggle(t *testing.T) {
	clock := newFakeClock()
	sender := &recordingSender{}
	s := newTestStream(t, KindAudio, sender, clock, func(o *Options) { o.NoSleep = true })

	ctx := context.Background()
	units := audioUnits(4)
	require.NoError(t, s.write(ctx, units[0]))
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, s.write(ctx, units[1]))
	assert.Empty(t, clock.sleepMillis())

	s.SetNoSleep(false)
	require.NoError(t, s.write(ctx, units[2]))
	require.NoError(t, s.write(ctx, units[3]))
	assertMillis(t, []float64{20, 20}, clock.sleepMillis())
}

func TestOnPTS(t *testing.T) {
	var got []float64
	s := newTestStream(t, KindVideo, &recordingSender{}, newFakeClock(), func(o *Options) {
		o.OnPTS = func(pts float64) { got = append(got, pts) }
	})

	require.NoError(t, s.Run(context.Background(), media.NewSliceSource(audioUnits(3))))
	assertMillis(t, []float64{0, 20, 40}, got)
}

func TestRunOnlyOnce(t *testing.T) {
	s := newTestStream(t, KindAudio, &recordingSender{}, newFakeClock(), nil)
	require.NoError(t, s.Run(context.Background(), media.NewSliceSource(nil)))
	assert.ErrorIs(t, s.Run(context.Background(), media.NewSliceSource(nil)), ErrAlreadyRun)
}

func TestRunSendErrors(t *testing.T) {
	errSocket := errors.New("socket closed")

	tests := []struct {
		name    string
		err     error
		wantErr error
		sends   int
	}{
		{"malformed frame skipped", rtp.ErrMalformedOBU, nil, 3},
		{"malformed nal skipped", rtp.ErrMalformedNAL, nil, 3},
		{"transport failure stops", errSocket, errSocket, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{hook: func(n int) error {
				if n == 1 {
					return tt.err
				}
				return nil
			}}
			s := newTestStream(t, KindVideo, sender, newFakeClock(), nil)

			err := s.Run(context.Background(), media.NewSliceSource(audioUnits(3)))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.sends, sender.count())
		})
	}
}

func TestRunCancelledDuringSleep(t *testing.T) {
	s := newTestStream(t, KindAudio, &recordingSender{}, nil, nil)
	units := []media.AccessUnit{{Data: []byte{1}, Length: 10, TimeBase: media.Rational{Num: 1, Den: 1}}}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := s.Run(ctx, media.NewSliceSource(units))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFrameMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := newFakeClock()
	sender := &recordingSender{hook: func(n int) error {
		if n == 0 {
			clock.Advance(25 * time.Millisecond)
		}
		return nil
	}}
	s := newTestStream(t, KindAudio, sender, clock, func(o *Options) { o.Metrics = metrics.New(reg) })

	require.NoError(t, s.Run(context.Background(), media.NewSliceSource(audioUnits(2))))

	expected := `
# HELP voicestream_pacing_late_frames_total Frames whose send time exceeded their duration
# TYPE voicestream_pacing_late_frames_total counter
voicestream_pacing_late_frames_total{stream="audio"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"voicestream_pacing_late_frames_total"))
}

func TestDefaultClockSleep(t *testing.T) {
	clock := DefaultClock{}
	assert.NoError(t, clock.Sleep(context.Background(), 0))
	assert.NoError(t, clock.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, clock.Sleep(ctx, 0), context.Canceled)
}
