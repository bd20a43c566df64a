package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// Codec seals and opens media packets for one session key and mode.
type Codec struct {
	mode EncryptionMode

	mu     sync.RWMutex
	key    [KeySize]byte
	gcm    cipher.AEAD
	closed bool
}

// NewCodec creates a packet codec for mode using the 32-byte secret key
// delivered by signaling. The key is copied; the caller may wipe its slice.
func NewCodec(mode EncryptionMode, key []byte) (*Codec, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, mode)
	}
	if len(key) != KeySize {
		logrus.WithFields(logrus.Fields{
			"function": "NewCodec",
			"mode":     mode.String(),
			"key_size": len(key),
		}).Error("Invalid secret key size")
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}

	c := &Codec{mode: mode}
	copy(c.key[:], key)

	if mode == ModeAES256GCM {
		block, err := aes.NewCipher(c.key[:])
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		c.gcm = gcm
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewCodec",
		"mode":     mode.String(),
	}).Debug("Packet codec created")

	return c, nil
}

// Mode returns the encryption mode of the codec.
func (c *Codec) Mode() EncryptionMode {
	return c.mode
}

// Overhead returns the number of bytes Encrypt adds to the plaintext.
// Both modes append a 16-byte tag.
func (c *Codec) Overhead() int {
	return secretbox.Overhead
}

// Encrypt seals plaintext under nonce. aad is authenticated but not
// encrypted in AES-GCM mode and ignored by the XSalsa20 lite mode.
// An empty plaintext is valid and yields a bare authentication tag.
func (c *Codec) Encrypt(plaintext, nonce, aad []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCodecClosed
	}
	if len(nonce) != c.mode.NonceSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(nonce), c.mode.NonceSize())
	}

	switch c.mode {
	case ModeAES256GCM:
		return c.gcm.Seal(nil, nonce, plaintext, aad), nil
	case ModeXSalsa20Poly1305Lite:
		var n [NonceSizeXSalsa20]byte
		copy(n[:], nonce)
		return secretbox.Seal(nil, plaintext, &n, &c.key), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, c.mode)
	}
}

// Decrypt opens ciphertext sealed by Encrypt with the same nonce and aad.
// Authentication failures wrap ErrDecryptFailed.
func (c *Codec) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCodecClosed
	}
	if len(nonce) != c.mode.NonceSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(nonce), c.mode.NonceSize())
	}

	switch c.mode {
	case ModeAES256GCM:
		out, err := c.gcm.Open(nil, nonce, ciphertext, aad)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return out, nil
	case ModeXSalsa20Poly1305Lite:
		var n [NonceSizeXSalsa20]byte
		copy(n[:], nonce)
		out, ok := secretbox.Open(nil, ciphertext, &n, &c.key)
		if !ok {
			return nil, ErrDecryptFailed
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, c.mode)
	}
}

// Close wipes the key material. Subsequent calls return ErrCodecClosed.
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.gcm = nil
	wipe(c.key[:])
	return nil
}

// wipe zeroes key material in place.
func wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
