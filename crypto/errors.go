package crypto

import "errors"

// Sentinel errors for packet encryption.
var (
	// ErrUnsupportedMode indicates an unknown encryption mode identifier.
	ErrUnsupportedMode = errors.New("unsupported encryption mode")

	// ErrInvalidKey indicates a secret key of the wrong size.
	ErrInvalidKey = errors.New("invalid secret key")

	// ErrInvalidNonce indicates a nonce of the wrong size for the mode.
	ErrInvalidNonce = errors.New("invalid nonce")

	// ErrDecryptFailed indicates the ciphertext failed authentication.
	ErrDecryptFailed = errors.New("decryption failed: message authentication failed")

	// ErrCodecClosed indicates use of a codec after Close.
	ErrCodecClosed = errors.New("codec closed")
)
