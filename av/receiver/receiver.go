package receiver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/voicestream/crypto"
	"github.com/opd-ai/voicestream/limits"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// Decrypter opens inbound payloads with the session key.
// transport.MediaUDP satisfies it.
type Decrypter interface {
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
	Mode() crypto.EncryptionMode
}

// Options configures a Receiver.
type Options struct {
	// BufferSize is the per-subscription packet queue length.
	BufferSize int
	// SpeakingWindow is how long a user counts as speaking after a packet.
	SpeakingWindow time.Duration
	// Clock replaces the wall clock. Nil selects DefaultClock.
	Clock Clock
	// Metrics receives receive counters. May be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns the default receive configuration.
func DefaultOptions() Options {
	return Options{
		BufferSize:     DefaultBufferSize,
		SpeakingWindow: DefaultSpeakingWindow,
	}
}

// Receiver routes inbound voice packets to per-user subscriptions.
type Receiver struct {
	keys     Decrypter
	opts     Options
	clock    Clock
	metrics  *metrics.Metrics
	ssrcs    *SSRCMap
	speaking *SpeakingMap

	mu            sync.Mutex
	subscriptions map[string]*Subscription
	closed        bool
}

// New creates a receiver decrypting with keys.
func New(keys Decrypter, opts Options) *Receiver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = DefaultClock{}
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"buffer_size":     opts.BufferSize,
		"speaking_window": opts.SpeakingWindow,
	}).Info("Creating voice receiver")

	return &Receiver{
		keys:          keys,
		opts:          opts,
		clock:         clock,
		metrics:       opts.Metrics,
		ssrcs:         NewSSRCMap(),
		speaking:      NewSpeakingMap(opts.SpeakingWindow, clock),
		subscriptions: make(map[string]*Subscription),
	}
}

// SSRCMap returns the sender directory.
func (r *Receiver) SSRCMap() *SSRCMap { return r.ssrcs }

// Speaking returns the speaking detector.
func (r *Receiver) Speaking() *SpeakingMap { return r.speaking }

// Subscribe returns the subscription for userID, creating it with end if
// none is open. An existing subscription keeps its original behavior.
func (r *Receiver) Subscribe(userID string, end EndBehavior) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subscriptions[userID]; ok {
		return sub
	}

	if r.closed {
		sub := newSubscription(userID, end, r.opts.BufferSize, r.clock, nil)
		sub.finish(ErrReceiverClosed)
		return sub
	}
	sub := newSubscription(userID, end, r.opts.BufferSize, r.clock, r.remove)
	r.subscriptions[userID] = sub
	r.metrics.SubscriptionOpened()

	logrus.WithFields(logrus.Fields{
		"function": "Receiver.Subscribe",
		"user_id":  userID,
		"end":      end.Type.String(),
		"duration": end.Duration,
	}).Info("Subscribed to user audio")
	return sub
}

// Subscription returns the open subscription for userID.
func (r *Receiver) Subscription(userID string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[userID]
	return sub, ok
}

func (r *Receiver) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscriptions[sub.userID] == sub {
		delete(r.subscriptions, sub.userID)
		r.metrics.SubscriptionClosed()
	}
}

// HandlePacket processes one inbound datagram. Its signature matches
// transport.PacketHandler.
func (r *Receiver) HandlePacket(packet []byte) {
	r.metrics.PacketReceived()

	if len(packet) < limits.RTPHeaderSize {
		r.drop(metrics.DropMalformed, len(packet), 0)
		return
	}
	ssrc := binary.BigEndian.Uint32(packet[8:12])

	user, ok := r.ssrcs.Get(ssrc)
	if !ok {
		r.drop(metrics.DropUnknownSSRC, len(packet), ssrc)
		return
	}
	r.speaking.OnPacket(user.UserID)

	sub, ok := r.Subscription(user.UserID)
	if !ok {
		return
	}

	pkt, err := r.parsePacket(packet)
	if err != nil {
		reason := metrics.DropDecrypt
		if errors.Is(err, ErrMalformedPacket) {
			reason = metrics.DropMalformed
		}
		r.metrics.PacketDropped(reason)
		sub.destroy(fmt.Errorf("user %s: failed to parse packet: %w", user.UserID, err))
		return
	}
	if !sub.push(pkt) {
		r.metrics.PacketDropped(metrics.DropBufferFull)
	}
}

func (r *Receiver) drop(reason string, size int, ssrc uint32) {
	r.metrics.PacketDropped(reason)
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.HandlePacket",
		"reason":   reason,
		"size":     size,
		"ssrc":     ssrc,
	}).Debug("Dropping inbound packet")
}

// parsePacket decrypts a datagram and strips its header extension block.
func (r *Receiver) parsePacket(packet []byte) (*rtp.Packet, error) {
	if len(packet) < limits.RTPHeaderSize+limits.NonceSuffixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(packet))
	}

	// The extension travels inside the ciphertext, so the header is parsed
	// without it.
	raw := make([]byte, limits.RTPHeaderSize)
	copy(raw, packet[:limits.RTPHeaderSize])
	raw[0] &^= 0x10
	var header rtp.Header
	if _, err := header.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}

	mode := r.keys.Mode()
	end := len(packet) - limits.NonceSuffixSize
	nonce, err := crypto.NonceFromSuffix(mode, packet[end:])
	if err != nil {
		return nil, err
	}
	var aad []byte
	if mode == crypto.ModeAES256GCM {
		aad = packet[:limits.RTPHeaderSize]
	}

	plaintext, err := r.keys.Decrypt(packet[limits.RTPHeaderSize:end], nonce, aad)
	if err != nil {
		return nil, err
	}
	payload, err := StripExtension(plaintext)
	if err != nil {
		return nil, err
	}
	return &rtp.Packet{Header: header, Payload: payload}, nil
}

// StripExtension removes a leading one-byte header extension block
// (profile 0xBEDE) from a decrypted payload. The block length counts 32-bit
// words; padding inside the block is skipped and nothing past it is consumed.
func StripExtension(payload []byte) ([]byte, error) {
	if len(payload) <= 4 || payload[0] != 0xbe || payload[1] != 0xde {
		return payload, nil
	}
	end := 4 + 4*int(binary.BigEndian.Uint16(payload[2:4]))
	if end > len(payload) {
		return nil, fmt.Errorf("%w: extension block of %d bytes exceeds payload of %d",
			ErrMalformedPacket, end-4, len(payload)-4)
	}

	for offset := 4; offset < end; {
		b := payload[offset]
		offset++
		if b == 0 {
			continue
		}
		if b>>4 == 0x0f {
			break
		}
		offset += int(b&0x0f) + 1
		if offset > end {
			return nil, fmt.Errorf("%w: extension element overruns block", ErrMalformedPacket)
		}
	}
	return payload[end:], nil
}

// Close ends every open subscription and stops speaking detection.
func (r *Receiver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*Subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.finish(ErrReceiverClosed)
	}
	r.speaking.Stop()

	logrus.WithFields(logrus.Fields{
		"function":      "Receiver.Close",
		"subscriptions": len(subs),
	}).Info("Voice receiver closed")
}
