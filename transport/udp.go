package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/opd-ai/voicestream/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each socket read so the receive loop notices Close.
const readTimeout = 100 * time.Millisecond

// PacketHandler processes one inbound datagram. The handler owns the slice.
type PacketHandler func(packet []byte)

// MediaUDP is the UDP media session towards one voice server.
type MediaUDP struct {
	id     uuid.UUID
	params SessionParams
	opts   Options
	conn   net.PacketConn
	remote *net.UDPAddr
	log    *logrus.Entry
	state  *fsm.FSM

	external ExternalAddress

	nonceMu sync.Mutex
	nonce   uint32
	mode    crypto.EncryptionMode

	mu         sync.RWMutex
	codec      *crypto.Codec
	audio      rtp.Packetizer
	video      rtp.Packetizer
	videoCodec rtp.Codec
	handler    PacketHandler

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial opens the media socket and performs IP discovery. It returns once the
// discovery response has been parsed. A non-empty params.SecretKey moves the
// session to Ready before Dial returns.
//
// Any failure leaves no socket behind; retrying is the caller's decision.
func Dial(ctx context.Context, params SessionParams, opts Options) (*MediaUDP, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if err := limits.ValidateMTU(opts.MTU); err != nil {
		return nil, err
	}

	remote, err := net.ResolveUDPAddr("udp", params.RemoteAddr())
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrSocket, params.RemoteAddr(), err)
	}

	localAddr := opts.LocalAddr
	if localAddr == "" {
		localAddr = ":0"
	}
	conn, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrSocket, localAddr, err)
	}

	id := uuid.New()
	log := logrus.WithFields(logrus.Fields{
		"session": id.String(),
		"remote":  remote.String(),
	})

	m := &MediaUDP{
		id:         id,
		params:     params,
		opts:       opts,
		conn:       conn,
		remote:     remote,
		log:        log,
		state:      newStateMachine(log, opts.Metrics),
		mode:       params.Mode,
		videoCodec: params.videoCodec(),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.discover(ctx); err != nil {
		log.WithFields(logrus.Fields{
			"function": "Dial",
			"error":    err.Error(),
		}).Error("IP discovery failed")
		_ = m.Close()
		return nil, err
	}

	m.wg.Add(1)
	go m.processPackets()

	if len(params.SecretKey) > 0 {
		if err := m.SetSecretKey(params.Mode, params.SecretKey); err != nil {
			_ = m.Close()
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"function": "Dial",
		"local":    conn.LocalAddr().String(),
		"external": m.external.String(),
		"ssrc":     params.SSRC,
	}).Info("Media session established")

	return m, nil
}

// discover sends the discovery probe and waits for exactly one response.
func (m *MediaUDP) discover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	// unblock ReadFrom when the context ends
	stop := context.AfterFunc(ctx, func() {
		_ = m.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := m.conn.WriteTo(BuildDiscoveryRequest(m.params.SSRC), m.remote); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrHandshakeFailed, ErrSocket, err)
	}

	buffer := make([]byte, limits.MaxDatagramSize)
	var n int
	for {
		read, from, err := m.conn.ReadFrom(buffer)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrHandshakeFailed, ctxErr)
			}
			return fmt.Errorf("%w: %w: %w", ErrHandshakeFailed, ErrSocket, err)
		}
		if m.fromRemote(from) {
			n = read
			break
		}
		m.logForeign("discover", from)
	}

	external, err := ParseDiscoveryResponse(buffer[:n])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	m.external = external

	if !stop() {
		// the deadline fired after the read returned
		_ = m.conn.SetReadDeadline(time.Time{})
	}
	return nil
}

// SetSecretKey installs the session key and moves the session to Ready.
func (m *MediaUDP) SetSecretKey(mode crypto.EncryptionMode, key []byte) error {
	switch m.State() {
	case StateStopped:
		return ErrClosed
	case StateReady:
		return fmt.Errorf("%w: secret key already set", ErrInvalidParams)
	}

	codec, err := crypto.NewCodec(mode, key)
	if err != nil {
		return err
	}

	m.nonceMu.Lock()
	m.mode = mode
	m.nonceMu.Unlock()

	m.mu.Lock()
	popts := m.opts.packetizerOptions()
	audio, err := rtp.NewPacketizer(rtp.CodecOpus, m.params.SSRC, m, codec, popts)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	video, err := rtp.NewPacketizer(m.videoCodec, m.params.videoSSRC(), m, codec, popts)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.codec = codec
	m.audio = audio
	m.video = video
	m.mu.Unlock()

	if err := m.state.Event(context.Background(), eventReady); err != nil {
		return fmt.Errorf("failed to enter ready state: %w", err)
	}
	return nil
}

// ID returns the session id used in logs.
func (m *MediaUDP) ID() uuid.UUID {
	return m.id
}

// State returns the current lifecycle state.
func (m *MediaUDP) State() State {
	return State(m.state.Current())
}

// IsReady reports whether frames may be sent.
func (m *MediaUDP) IsReady() bool {
	return m.State() == StateReady
}

// ExternalAddr returns the address discovered during the handshake.
func (m *MediaUDP) ExternalAddr() ExternalAddress {
	return m.external
}

// LocalAddr returns the local socket address.
func (m *MediaUDP) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Mode returns the encryption mode in use.
func (m *MediaUDP) Mode() crypto.EncryptionMode {
	m.nonceMu.Lock()
	defer m.nonceMu.Unlock()
	return m.mode
}

// NewNonce advances the session nonce counter and returns it in a buffer of
// the mode's nonce size. The counter wraps modulo 2^32.
func (m *MediaUDP) NewNonce() []byte {
	m.nonceMu.Lock()
	m.nonce++
	n, mode := m.nonce, m.mode
	m.nonceMu.Unlock()

	return crypto.NonceFromCounter(mode, n)
}

// SendPacket writes one datagram to the media server.
func (m *MediaUDP) SendPacket(packet []byte) error {
	if m.State() == StateStopped {
		return ErrClosed
	}
	if _, err := m.conn.WriteTo(packet, m.remote); err != nil {
		return fmt.Errorf("%w: %w", ErrSocket, err)
	}
	return nil
}

// Decrypt opens an inbound payload with the session key.
func (m *MediaUDP) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	m.mu.RLock()
	codec := m.codec
	m.mu.RUnlock()

	if codec == nil {
		return nil, ErrNotReady
	}
	return codec.Decrypt(ciphertext, nonce, aad)
}

// SendAudioFrame packetizes and sends one Opus frame.
func (m *MediaUDP) SendAudioFrame(frame []byte, duration time.Duration) error {
	if !m.IsReady() {
		return ErrNotReady
	}
	m.mu.RLock()
	p := m.audio
	m.mu.RUnlock()

	return p.SendFrame(frame, duration)
}

// SendVideoFrame packetizes and sends one video access unit.
func (m *MediaUDP) SendVideoFrame(frame []byte, duration time.Duration) error {
	if !m.IsReady() {
		return ErrNotReady
	}
	m.mu.RLock()
	p := m.video
	m.mu.RUnlock()

	return p.SendFrame(frame, duration)
}

// SetVideoCodec replaces the video packetizer. The new packetizer starts
// fresh sequence, timestamp and picture id counters.
func (m *MediaUDP) SetVideoCodec(codec rtp.Codec) error {
	if !codec.Packetizable() {
		return fmt.Errorf("%w: %v", rtp.ErrUnsupportedCodec, codec)
	}
	if m.State() == StateStopped {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.videoCodec = codec
	if m.codec == nil {
		return nil
	}

	video, err := rtp.NewPacketizer(codec, m.params.videoSSRC(), m, m.codec, m.opts.packetizerOptions())
	if err != nil {
		return err
	}
	m.video = video

	m.log.WithFields(logrus.Fields{
		"function": "SetVideoCodec",
		"codec":    codec.String(),
	}).Info("Video packetizer rebound")
	return nil
}

// VideoCodec returns the codec of the current video packetizer.
func (m *MediaUDP) VideoCodec() rtp.Codec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.videoCodec
}

// Stats returns the audio and video packetizer counters. Both are zero
// before the session is Ready.
func (m *MediaUDP) Stats() (audio, video rtp.Stats) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.audio != nil {
		audio = m.audio.Stats()
	}
	if m.video != nil {
		video = m.video.Stats()
	}
	return audio, video
}

// OnPacket registers the handler for inbound datagrams, replacing any
// previous handler.
func (m *MediaUDP) OnPacket(handler PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Close stops the session and releases the socket. It is safe to call more
// than once.
func (m *MediaUDP) Close() error {
	var err error
	m.closeOnce.Do(func() {
		_ = m.state.Event(context.Background(), eventStop)
		m.cancel()
		err = m.conn.Close()
		m.wg.Wait()

		m.mu.Lock()
		if m.codec != nil {
			_ = m.codec.Close()
		}
		m.mu.Unlock()

		m.log.WithFields(logrus.Fields{
			"function": "Close",
		}).Info("Media session closed")
	})
	return err
}

// processPackets reads datagrams until the session is closed.
func (m *MediaUDP) processPackets() {
	defer m.wg.Done()
	buffer := make([]byte, limits.MaxDatagramSize)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			m.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads one datagram and hands a copy to the handler.
func (m *MediaUDP) processIncomingPacket(buffer []byte) {
	data, err := m.readPacketData(buffer)
	if err != nil {
		return
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler != nil {
		handler(append([]byte(nil), data...))
	}
}

// readPacketData reads one datagram with a short deadline.
func (m *MediaUDP) readPacketData(buffer []byte) ([]byte, error) {
	_ = m.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, from, err := m.conn.ReadFrom(buffer)
	if err != nil {
		return nil, m.handleReadError(err)
	}
	if !m.fromRemote(from) {
		m.logForeign("readPacketData", from)
		return nil, errForeignSource
	}
	return buffer[:n], nil
}

// fromRemote reports whether addr is the media server's address.
func (m *MediaUDP) fromRemote(addr net.Addr) bool {
	got, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	return got.Port == m.remote.Port && got.IP.Equal(m.remote.IP)
}

func (m *MediaUDP) logForeign(function string, from net.Addr) {
	m.log.WithFields(logrus.Fields{
		"function": function,
		"source":   from.String(),
	}).Debug("Dropped datagram from foreign source")
}

// handleReadError logs read errors other than timeouts and shutdown.
func (m *MediaUDP) handleReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if errors.Is(err, net.ErrClosed) || m.ctx.Err() != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"function": "readPacketData",
		"error":    err.Error(),
	}).Warn("Media socket read failed")
	return err
}
