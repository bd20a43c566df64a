package voicestream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/voicestream/av/pacing"
	"github.com/opd-ai/voicestream/av/receiver"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/opd-ai/voicestream/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyPlaying is returned when PlayStream is called while another
	// playback is running on the session.
	ErrAlreadyPlaying = errors.New("session is already playing")

	// ErrNoSources is returned when PlayStream receives neither a video nor
	// an audio source.
	ErrNoSources = errors.New("no media sources")
)

// Options contains configuration options for a voice session.
type Options struct {
	// Transport configures the UDP media session.
	Transport transport.Options
	// Pacing configures both playback streams.
	Pacing pacing.Options
	// Receiver configures inbound audio subscriptions.
	Receiver receiver.Options
	// Metrics is shared by every component of the session. May be nil.
	Metrics *metrics.Metrics
}

// NewOptions creates a new default options.
func NewOptions() *Options {
	return &Options{
		Transport: transport.DefaultOptions(),
		Pacing:    pacing.DefaultOptions(),
		Receiver:  receiver.DefaultOptions(),
	}
}

// Session is one joined voice connection: the media socket, the receive
// pipeline and at most one running playback.
type Session struct {
	options *Options
	conn    *transport.MediaUDP
	recv    *receiver.Receiver

	mu      sync.Mutex
	playing bool
	stop    context.CancelFunc
	closed  bool
}

// Join opens the media session described by params and waits for IP
// discovery. With params.SecretKey set the session is ready to stream when
// Join returns; otherwise call SetSecretKey once the key arrives.
func Join(ctx context.Context, params transport.SessionParams, options *Options) (*Session, error) {
	if options == nil {
		options = NewOptions()
	}
	opts := *options
	if opts.Metrics != nil {
		opts.Transport.Metrics = opts.Metrics
		opts.Pacing.Metrics = opts.Metrics
		opts.Receiver.Metrics = opts.Metrics
	}

	conn, err := transport.Dial(ctx, params, opts.Transport)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Join",
			"address":  params.RemoteAddr(),
			"error":    err.Error(),
		}).Error("Failed to join voice session")
		return nil, err
	}

	recv := receiver.New(conn, opts.Receiver)
	conn.OnPacket(func(packet []byte) {
		if conn.IsReady() {
			recv.HandlePacket(packet)
		}
	})

	logrus.WithFields(logrus.Fields{
		"function":    "Join",
		"session_id":  conn.ID().String(),
		"external_ip": conn.ExternalAddr().String(),
		"ready":       conn.IsReady(),
	}).Info("Joined voice session")

	return &Session{options: &opts, conn: conn, recv: recv}, nil
}

// Transport returns the underlying media session.
func (s *Session) Transport() *transport.MediaUDP { return s.conn }

// Receiver returns the inbound audio pipeline.
func (s *Session) Receiver() *receiver.Receiver { return s.recv }

// SetSecretKey installs the session key delivered by signaling.
func (s *Session) SetSecretKey(mode crypto.EncryptionMode, key []byte) error {
	return s.conn.SetSecretKey(mode, key)
}

// HandleSignaling forwards one voice gateway message to the receiver.
func (s *Session) HandleSignaling(message []byte) error {
	return s.recv.HandleSignaling(message)
}

// Close stops playback, ends every subscription and closes the socket.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.recv.Close()
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}
