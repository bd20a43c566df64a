package rtp

import (
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/voicestream/crypto"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// captureTransport records packets instead of writing them to a socket.
type captureTransport struct {
	mu      sync.Mutex
	mode    crypto.EncryptionMode
	counter uint32
	packets [][]byte
	sendErr error
	// failAfter fails every send once this many packets were recorded
	failAfter int
}

func newCaptureTransport(mode crypto.EncryptionMode) *captureTransport {
	return &captureTransport{mode: mode}
}

func (c *captureTransport) SendPacket(packet []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.failAfter > 0 && len(c.packets) >= c.failAfter {
		return errSocket
	}
	c.packets = append(c.packets, append([]byte(nil), packet...))
	return nil
}

func (c *captureTransport) NewNonce() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return crypto.NonceFromCounter(c.mode, c.counter)
}

func (c *captureTransport) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.packets...)
}

type testRig struct {
	transport *captureTransport
	codec     *crypto.Codec
}

func newRig(t *testing.T, mode crypto.EncryptionMode) *testRig {
	t.Helper()
	codec, err := crypto.NewCodec(mode, testKey)
	require.NoError(t, err)
	return &testRig{transport: newCaptureTransport(mode), codec: codec}
}

func (r *testRig) packetizer(t *testing.T, codec Codec, opts Options) Packetizer {
	t.Helper()
	p, err := NewPacketizer(codec, 0x11223344, r.transport, r.codec, opts)
	require.NoError(t, err)
	return p
}

// openedPacket is a decrypted media packet.
type openedPacket struct {
	header    rtp.Header
	extension bool
	plaintext []byte
	counter   uint32
}

// open parses and decrypts one media packet written by a packetizer.
func (r *testRig) open(t *testing.T, packet []byte) openedPacket {
	t.Helper()
	require.Greater(t, len(packet), 16)

	raw := append([]byte(nil), packet[:12]...)
	ext := raw[0]&0x10 != 0
	raw[0] &^= 0x10
	var h rtp.Header
	_, err := h.Unmarshal(raw)
	require.NoError(t, err)

	suffix := packet[len(packet)-4:]
	nonce, err := crypto.NonceFromSuffix(r.codec.Mode(), suffix)
	require.NoError(t, err)
	plaintext, err := r.codec.Decrypt(packet[12:len(packet)-4], nonce, packet[:12])
	require.NoError(t, err)

	return openedPacket{
		header:    h,
		extension: ext,
		plaintext: plaintext,
		counter:   crypto.CounterFromNonce(nonce),
	}
}

// stripExtension removes the video header extension block.
func stripExtension(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(plaintext), len(headerExtension))
	require.Equal(t, headerExtension, plaintext[:len(headerExtension)])
	return plaintext[len(headerExtension):]
}

var errSocket = errors.New("socket closed")
