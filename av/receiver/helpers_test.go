package receiver

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/voicestream/crypto"
	"github.com/stretchr/testify/require"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// codecKeys adapts a crypto.Codec to Decrypter.
type codecKeys struct {
	codec *crypto.Codec
}

func (k codecKeys) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	return k.codec.Decrypt(ciphertext, nonce, aad)
}

func (k codecKeys) Mode() crypto.EncryptionMode { return k.codec.Mode() }

func newCodec(t *testing.T, mode crypto.EncryptionMode, seed byte) *crypto.Codec {
	t.Helper()
	codec, err := crypto.NewCodec(mode, bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	t.Cleanup(func() { _ = codec.Close() })
	return codec
}

// audioExtension is the audio level extension real clients prepend.
var audioExtension = []byte{0xbe, 0xde, 0x00, 0x01, 0x10, 0x7f, 0x00, 0x00}

// sealPacket builds an encrypted voice datagram the way a remote client
// would send it.
func sealPacket(t *testing.T, codec *crypto.Codec, ssrc uint32, seq uint16, ts uint32, counter uint32, plaintext []byte) []byte {
	t.Helper()
	header := make([]byte, 12)
	header[0] = 0x90
	header[1] = 0x78
	binary.BigEndian.PutUint16(header[2:], seq)
	binary.BigEndian.PutUint32(header[4:], ts)
	binary.BigEndian.PutUint32(header[8:], ssrc)

	nonce := crypto.NonceFromCounter(codec.Mode(), counter)
	var aad []byte
	if codec.Mode() == crypto.ModeAES256GCM {
		aad = header
	}
	sealed, err := codec.Encrypt(plaintext, nonce, aad)
	require.NoError(t, err)

	packet := append(header, sealed...)
	return append(packet, crypto.NonceSuffix(nonce)...)
}

func withExtension(payload []byte) []byte {
	return append(append([]byte{}, audioExtension...), payload...)
}
