package pacing

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/opd-ai/voicestream/av/media"
	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/opd-ai/voicestream/limits"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/sirupsen/logrus"
)

// Kind names the direction a stream paces.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// DefaultSyncTolerance is how far a linked stream may run ahead.
const DefaultSyncTolerance = 5 * time.Millisecond

// Sender delivers one access unit to the transport.
type Sender interface {
	SendFrame(frame []byte, duration time.Duration) error
}

// SendFunc adapts a function to Sender.
type SendFunc func(frame []byte, duration time.Duration) error

// SendFrame calls f.
func (f SendFunc) SendFrame(frame []byte, duration time.Duration) error {
	return f(frame, duration)
}

// Options configures a Stream.
type Options struct {
	// NoSleep disables pacing for sources that are already real time.
	NoSleep bool
	// Sync enables waiting on a linked counterpart.
	Sync bool
	// SyncTolerance is the allowed lead over the counterpart.
	SyncTolerance time.Duration
	// OnPTS is called with the presentation timestamp, in milliseconds,
	// after every frame.
	OnPTS func(ptsMillis float64)
	// Clock replaces the wall clock. Nil selects DefaultClock.
	Clock Clock
	// Metrics receives pacing counters. May be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns options with sync enabled at the default tolerance.
func DefaultOptions() Options {
	return Options{
		Sync:          true,
		SyncTolerance: DefaultSyncTolerance,
	}
}

// Stream paces one direction of a session.
type Stream struct {
	kind    Kind
	sender  Sender
	clock   Clock
	metrics *metrics.Metrics
	onPTS   func(float64)

	sendLog  *logrus.Entry
	syncLog  *logrus.Entry
	sleepLog *logrus.Entry

	mu          sync.Mutex
	noSleep     bool
	reinit      bool
	syncEnabled bool
	tolerance   float64
	pts         float64
	hasPTS      bool
	startPTS    float64
	hasStart    bool
	startTime   time.Time
	ended       bool
	started     bool
	pair        *SyncPair
}

// NewStream creates a stream sending through sender.
func NewStream(kind Kind, sender Sender, opts Options) (*Stream, error) {
	if sender == nil {
		return nil, ErrNilSender
	}
	clock := opts.Clock
	if clock == nil {
		clock = DefaultClock{}
	}
	tolerance := opts.SyncTolerance
	if tolerance < 0 {
		tolerance = DefaultSyncTolerance
	}

	log := logrus.WithField("stream", string(kind))
	return &Stream{
		kind:        kind,
		sender:      sender,
		clock:       clock,
		metrics:     opts.Metrics,
		onPTS:       opts.OnPTS,
		sendLog:     log.WithField("component", "send"),
		syncLog:     log.WithField("component", "sync"),
		sleepLog:    log.WithField("component", "sleep"),
		noSleep:     opts.NoSleep,
		syncEnabled: opts.Sync,
		tolerance:   millis(tolerance),
	}, nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Kind returns the stream direction.
func (s *Stream) Kind() Kind { return s.kind }

// PTS returns the presentation timestamp of the last sent frame in
// milliseconds, and false before the first frame.
func (s *Stream) PTS() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pts, s.hasPTS
}

// SetNoSleep toggles pacing. Turning pacing back on re-establishes the
// timing baseline at the next frame.
func (s *Stream) SetNoSleep(noSleep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noSleep && !noSleep {
		s.reinit = true
	}
	s.noSleep = noSleep
}

// SetSync enables or disables waiting on the linked counterpart.
func (s *Stream) SetSync(enabled bool) {
	s.mu.Lock()
	s.syncEnabled = enabled
	pair := s.pair
	s.mu.Unlock()

	if pair != nil {
		pair.notify()
	}
}

// SetSyncTolerance changes the allowed lead. Negative values are ignored.
func (s *Stream) SetSyncTolerance(d time.Duration) {
	if d < 0 {
		return
	}
	s.mu.Lock()
	s.tolerance = millis(d)
	pair := s.pair
	s.mu.Unlock()

	if pair != nil {
		pair.notify()
	}
}

func (s *Stream) setPair(p *SyncPair) *SyncPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.pair
	s.pair = p
	return old
}

func (s *Stream) clearPair(p *SyncPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == p {
		s.pair = nil
	}
}

// Run paces src until it is exhausted, ctx ends or a send fails. Per-frame
// input errors are logged and the frame is skipped. A stream runs once.
func (s *Stream) Run(ctx context.Context, src media.Source) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.started = true
	s.mu.Unlock()
	defer s.end()

	s.sendLog.WithFields(logrus.Fields{
		"function": "Run",
	}).Debug("Stream started")

	for {
		unit, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.sendLog.WithFields(logrus.Fields{
				"function": "Run",
			}).Debug("Stream finished")
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.write(ctx, unit); err != nil {
			return err
		}
	}
}

// end marks the stream finished so a linked counterpart stops waiting.
func (s *Stream) end() {
	s.mu.Lock()
	s.ended = true
	pair := s.pair
	s.mu.Unlock()

	if pair != nil {
		pair.notify()
	}
}

// Ended reports whether Run has returned.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// write sends one unit and sleeps for the remainder of its time slot.
func (s *Stream) write(ctx context.Context, unit media.AccessUnit) error {
	if err := s.waitForSync(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.reinit {
		s.hasStart = false
		s.reinit = false
	}
	s.mu.Unlock()

	frametime := unit.DurationMillis()
	start := s.clock.Now()
	err := s.sender.SendFrame(unit.Data, unit.Duration())
	end := s.clock.Now()
	if err != nil {
		if !isFrameError(err) {
			return err
		}
		s.sendLog.WithFields(logrus.Fields{
			"function": "write",
			"pts":      unit.PTSMillis(),
			"size":     len(unit.Data),
			"error":    err.Error(),
		}).Warn("Skipping frame")
	}
	sendTime := millis(end.Sub(start))

	pts := unit.PTSMillis()
	s.mu.Lock()
	s.pts = pts
	s.hasPTS = true
	if !s.hasStart {
		s.startPTS = pts
		s.startTime = start
		s.hasStart = true
	}
	startPTS, startTime, noSleep := s.startPTS, s.startTime, s.noSleep
	pair := s.pair
	s.mu.Unlock()

	late := frametime > 0 && sendTime > frametime
	s.metrics.FrameSent(string(s.kind), end.Sub(start), late)
	if late {
		s.sendLog.WithFields(logrus.Fields{
			"function":  "write",
			"send_ms":   sendTime,
			"frame_ms":  frametime,
			"ratio":     sendTime / frametime,
			"frame_pts": pts,
		}).Warn("Frame took longer to send than its duration")
	}

	if s.onPTS != nil {
		s.onPTS(pts)
	}
	if pair != nil {
		pair.notify()
	}

	if noSleep {
		return nil
	}
	sleep := pts - startPTS + frametime - millis(end.Sub(startTime))
	if sleep <= 0 {
		return nil
	}
	s.sleepLog.WithFields(logrus.Fields{
		"function": "write",
		"sleep_ms": sleep,
	}).Trace("Sleeping until next frame")
	return s.clock.Sleep(ctx, time.Duration(sleep*float64(time.Millisecond)))
}

// waitForSync blocks while this stream leads its counterpart by more than
// the tolerance.
func (s *Stream) waitForSync(ctx context.Context) error {
	waited := false
	for {
		s.mu.Lock()
		pair := s.pair
		s.mu.Unlock()
		if pair == nil {
			return nil
		}

		other, changed := pair.counterpart(s)
		if other == nil {
			return nil
		}
		lead, ahead := s.leadOver(other)
		if !ahead {
			return nil
		}

		if !waited {
			waited = true
			s.metrics.SyncWait(string(s.kind))
			s.syncLog.WithFields(logrus.Fields{
				"function": "waitForSync",
				"lead_ms":  lead,
				"other":    string(other.kind),
			}).Debug("Waiting for counterpart stream")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// leadOver reports how far s is ahead of other and whether that exceeds
// the tolerance with sync enabled and other still running.
func (s *Stream) leadOver(other *Stream) (float64, bool) {
	s.mu.Lock()
	pts, hasPTS, enabled, tolerance := s.pts, s.hasPTS, s.syncEnabled, s.tolerance
	s.mu.Unlock()

	other.mu.Lock()
	otherPTS, otherHasPTS, otherEnded := other.pts, other.hasPTS, other.ended
	other.mu.Unlock()

	if !enabled || !hasPTS || !otherHasPTS || otherEnded {
		return 0, false
	}
	lead := pts - otherPTS
	return lead, lead > tolerance
}

// isFrameError reports whether err rejects a single malformed frame rather
// than the session.
func isFrameError(err error) bool {
	return errors.Is(err, rtp.ErrMalformedOBU) ||
		errors.Is(err, rtp.ErrMalformedNAL) ||
		errors.Is(err, rtp.ErrEmptyFrame) ||
		errors.Is(err, limits.ErrFrameTooLarge)
}
