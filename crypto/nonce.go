package crypto

import (
	"encoding/binary"
	"fmt"
)

// NonceFromCounter builds a zero-padded nonce buffer for mode whose first 4
// bytes hold counter in big-endian order.
func NonceFromCounter(mode EncryptionMode, counter uint32) []byte {
	nonce := make([]byte, mode.NonceSize())
	if len(nonce) < SuffixSize {
		return nonce
	}
	binary.BigEndian.PutUint32(nonce, counter)
	return nonce
}

// NonceFromSuffix rebuilds the nonce for mode from the 4 counter bytes
// carried at the end of a packet.
func NonceFromSuffix(mode EncryptionMode, suffix []byte) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, mode)
	}
	if len(suffix) != SuffixSize {
		return nil, fmt.Errorf("%w: suffix length %d, want %d", ErrInvalidNonce, len(suffix), SuffixSize)
	}
	nonce := make([]byte, mode.NonceSize())
	copy(nonce, suffix)
	return nonce, nil
}

// NonceSuffix returns the bytes of nonce that are appended to the packet.
func NonceSuffix(nonce []byte) []byte {
	if len(nonce) < SuffixSize {
		return nil
	}
	return nonce[:SuffixSize]
}

// CounterFromNonce extracts the counter value from a nonce buffer.
func CounterFromNonce(nonce []byte) uint32 {
	if len(nonce) < SuffixSize {
		return 0
	}
	return binary.BigEndian.Uint32(nonce)
}
