package receiver

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// SilenceFrame is the Opus frame clients send while muted.
var SilenceFrame = []byte{0xf8, 0xff, 0xfe}

// EndBehaviorType selects when a subscription ends on its own.
type EndBehaviorType int

const (
	// BehaviorManual never ends automatically.
	BehaviorManual EndBehaviorType = iota
	// BehaviorAfterSilence ends after Duration without a non-silent frame.
	BehaviorAfterSilence
	// BehaviorAfterInactivity ends after Duration without any frame.
	BehaviorAfterInactivity
)

func (t EndBehaviorType) String() string {
	switch t {
	case BehaviorManual:
		return "manual"
	case BehaviorAfterSilence:
		return "after_silence"
	case BehaviorAfterInactivity:
		return "after_inactivity"
	default:
		return fmt.Sprintf("EndBehaviorType(%d)", int(t))
	}
}

// EndBehavior configures automatic termination of a subscription.
type EndBehavior struct {
	Type     EndBehaviorType
	Duration time.Duration
}

// Manual returns the behavior of a subscription closed only by its owner.
func Manual() EndBehavior {
	return EndBehavior{Type: BehaviorManual}
}

// AfterSilence returns a behavior ending d after the last non-silent frame.
func AfterSilence(d time.Duration) EndBehavior {
	return EndBehavior{Type: BehaviorAfterSilence, Duration: d}
}

// AfterInactivity returns a behavior ending d after the last frame.
func AfterInactivity(d time.Duration) EndBehavior {
	return EndBehavior{Type: BehaviorAfterInactivity, Duration: d}
}

// DefaultBufferSize is the number of packets a subscription queues before
// dropping.
const DefaultBufferSize = 64

// Subscription is the ordered stream of Opus packets from one user.
type Subscription struct {
	userID  string
	end     EndBehavior
	clock   Clock
	onClose func(*Subscription)
	log     *logrus.Entry

	mu      sync.Mutex
	packets chan *rtp.Packet
	done    chan struct{}
	closed  bool
	err     error
	timer   Timer
	gen     uint64
}

func newSubscription(userID string, end EndBehavior, bufferSize int, clock Clock, onClose func(*Subscription)) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscription{
		userID:  userID,
		end:     end,
		clock:   clock,
		onClose: onClose,
		log: logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"end":     end.Type.String(),
		}),
		packets: make(chan *rtp.Packet, bufferSize),
		done:    make(chan struct{}),
	}
}

// UserID returns the subscribed user.
func (s *Subscription) UserID() string { return s.userID }

// EndBehavior returns the termination policy.
func (s *Subscription) EndBehavior() EndBehavior { return s.end }

// Packets returns the packet channel. It is closed when the subscription ends.
func (s *Subscription) Packets() <-chan *rtp.Packet { return s.packets }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Read returns the next packet. After the queue drains on a closed
// subscription it returns Err, or ErrSubscriptionClosed for a graceful end.
func (s *Subscription) Read(ctx context.Context) (*rtp.Packet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pkt, ok := <-s.packets:
		if ok {
			return pkt, nil
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, ErrSubscriptionClosed
	}
}

// Err returns the failure that ended the subscription, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription without error.
func (s *Subscription) Close() {
	s.finish(nil)
}

// push queues pkt and renews the end timer. It reports false when the
// subscription is closed or its buffer is full.
func (s *Subscription) push(pkt *rtp.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	switch s.end.Type {
	case BehaviorAfterInactivity:
		s.renewLocked()
	case BehaviorAfterSilence:
		if s.timer == nil || !bytes.Equal(pkt.Payload, SilenceFrame) {
			s.renewLocked()
		}
	}

	select {
	case s.packets <- pkt:
		return true
	default:
		s.log.WithFields(logrus.Fields{
			"function": "Subscription.push",
			"sequence": pkt.SequenceNumber,
		}).Warn("Subscription buffer full, dropping packet")
		return false
	}
}

func (s *Subscription) renewLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.end.Duration, func() { s.expire(gen) })
}

func (s *Subscription) expire(gen uint64) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.log.WithFields(logrus.Fields{
		"function": "Subscription.expire",
		"after":    s.end.Duration,
	}).Debug("Subscription timed out")
	s.finish(nil)
}

// destroy ends the subscription with err.
func (s *Subscription) destroy(err error) {
	s.finish(err)
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.packets)
	close(s.done)
	s.mu.Unlock()

	if err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "Subscription.finish",
			"error":    err.Error(),
		}).Warn("Subscription destroyed")
	} else {
		s.log.WithFields(logrus.Fields{
			"function": "Subscription.finish",
		}).Debug("Subscription ended")
	}

	if s.onClose != nil {
		s.onClose(s)
	}
}
