package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewCodec(t *testing.T) {
	tests := []struct {
		name    string
		mode    EncryptionMode
		keySize int
		wantErr error
	}{
		{"aes gcm", ModeAES256GCM, KeySize, nil},
		{"xsalsa20 lite", ModeXSalsa20Poly1305Lite, KeySize, nil},
		{"short key", ModeAES256GCM, 16, ErrInvalidKey},
		{"long key", ModeXSalsa20Poly1305Lite, 33, ErrInvalidKey},
		{"unknown mode", EncryptionMode(99), KeySize, ErrUnsupportedMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewCodec(tt.mode, make([]byte, tt.keySize))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, codec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, codec.Mode())
			assert.Equal(t, 16, codec.Overhead())
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 3, 160, 1199, 1200}

	for _, mode := range []EncryptionMode{ModeAES256GCM, ModeXSalsa20Poly1305Lite} {
		codec, err := NewCodec(mode, testKey(t))
		require.NoError(t, err)

		for i, size := range sizes {
			payload := make([]byte, size)
			_, _ = rand.Read(payload)
			nonce := NonceFromCounter(mode, uint32(i+1))
			aad := []byte{0x80, 0x78, 0x00, byte(i), 0, 0, 0, 1, 0, 0, 0, 2}

			sealed, err := codec.Encrypt(payload, nonce, aad)
			require.NoError(t, err, "%v size %d", mode, size)
			assert.Len(t, sealed, size+codec.Overhead())

			opened, err := codec.Decrypt(sealed, nonce, aad)
			require.NoError(t, err, "%v size %d", mode, size)
			assert.True(t, bytes.Equal(payload, opened), "%v size %d", mode, size)
		}
	}
}

func TestCodecDecryptFailures(t *testing.T) {
	for _, mode := range []EncryptionMode{ModeAES256GCM, ModeXSalsa20Poly1305Lite} {
		t.Run(mode.String(), func(t *testing.T) {
			codec, err := NewCodec(mode, testKey(t))
			require.NoError(t, err)

			nonce := NonceFromCounter(mode, 7)
			sealed, err := codec.Encrypt([]byte("opus frame"), nonce, []byte("header"))
			require.NoError(t, err)

			tampered := append([]byte(nil), sealed...)
			tampered[0] ^= 0xff
			_, err = codec.Decrypt(tampered, nonce, []byte("header"))
			assert.ErrorIs(t, err, ErrDecryptFailed)

			_, err = codec.Decrypt(sealed, NonceFromCounter(mode, 8), []byte("header"))
			assert.ErrorIs(t, err, ErrDecryptFailed)

			other, err := NewCodec(mode, testKey(t))
			require.NoError(t, err)
			_, err = other.Decrypt(sealed, nonce, []byte("header"))
			assert.ErrorIs(t, err, ErrDecryptFailed)
		})
	}
}

func TestCodecAuthenticatesHeaderInGCM(t *testing.T) {
	codec, err := NewCodec(ModeAES256GCM, testKey(t))
	require.NoError(t, err)

	nonce := NonceFromCounter(ModeAES256GCM, 1)
	sealed, err := codec.Encrypt([]byte{1, 2, 3}, nonce, []byte{0x80, 0x78})
	require.NoError(t, err)

	_, err = codec.Decrypt(sealed, nonce, []byte{0x80, 0x79})
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCodecRejectsWrongNonceWidth(t *testing.T) {
	codec, err := NewCodec(ModeAES256GCM, testKey(t))
	require.NoError(t, err)

	_, err = codec.Encrypt([]byte{1}, make([]byte, NonceSizeXSalsa20), nil)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestCodecClose(t *testing.T) {
	codec, err := NewCodec(ModeXSalsa20Poly1305Lite, testKey(t))
	require.NoError(t, err)

	require.NoError(t, codec.Close())
	assert.Equal(t, [KeySize]byte{}, codec.key)

	_, err = codec.Encrypt([]byte{1}, NonceFromCounter(ModeXSalsa20Poly1305Lite, 1), nil)
	assert.ErrorIs(t, err, ErrCodecClosed)
	assert.NoError(t, codec.Close())
}

func TestCodecCopiesKey(t *testing.T) {
	key := testKey(t)
	codec, err := NewCodec(ModeXSalsa20Poly1305Lite, key)
	require.NoError(t, err)

	nonce := NonceFromCounter(ModeXSalsa20Poly1305Lite, 1)
	sealed, err := codec.Encrypt([]byte("abc"), nonce, nil)
	require.NoError(t, err)

	clear(key)
	opened, err := codec.Decrypt(sealed, nonce, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), opened)
}
