package crypto

import (
	"fmt"
	"strings"
)

// EncryptionMode identifies the AEAD construction used by a media session.
type EncryptionMode int

const (
	// ModeAES256GCM is AEAD AES-256-GCM with a 12-byte nonce.
	ModeAES256GCM EncryptionMode = iota + 1
	// ModeXSalsa20Poly1305Lite is XSalsa20-Poly1305 with a 24-byte nonce
	// carrying a 4-byte counter.
	ModeXSalsa20Poly1305Lite
)

const (
	// KeySize is the secret key size shared by both modes.
	KeySize = 32

	// NonceSizeAES256GCM is the GCM standard nonce size.
	NonceSizeAES256GCM = 12

	// NonceSizeXSalsa20 is the secretbox nonce size.
	NonceSizeXSalsa20 = 24

	// SuffixSize is the number of nonce bytes carried on the wire.
	SuffixSize = 4
)

var modeNames = map[EncryptionMode]string{
	ModeAES256GCM:            "aead_aes256_gcm",
	ModeXSalsa20Poly1305Lite: "xsalsa20_poly1305_lite",
}

// String returns the protocol name of the mode as negotiated by signaling.
func (m EncryptionMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("EncryptionMode(%d)", int(m))
}

// Valid reports whether m is one of the supported modes.
func (m EncryptionMode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// NonceSize returns the nonce buffer width for the mode, or 0 for an
// unknown mode.
func (m EncryptionMode) NonceSize() int {
	switch m {
	case ModeAES256GCM:
		return NonceSizeAES256GCM
	case ModeXSalsa20Poly1305Lite:
		return NonceSizeXSalsa20
	default:
		return 0
	}
}

// ParseEncryptionMode maps a signaling mode identifier onto an EncryptionMode.
// Matching is case-insensitive and accepts the "_rtpsize" suffixed variants.
func ParseEncryptionMode(name string) (EncryptionMode, error) {
	n := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "_rtpsize")
	for mode, modeName := range modeNames {
		if n == modeName {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, name)
}
