// Package limits provides centralized packet and frame size limits for the
// voice media transport.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultMTU is the largest codec payload chunk carried by one RTP packet.
	DefaultMTU = 1200

	// MinMTU is the smallest MTU accepted by configuration.
	// Below this the per-packet framing overhead dominates the payload.
	MinMTU = 64

	// RTPHeaderSize is the size of the fixed RTP header without CSRCs.
	RTPHeaderSize = 12

	// NonceSuffixSize is the number of nonce bytes appended to each packet.
	NonceSuffixSize = 4

	// AEADTagSize is the authentication tag size of both supported AEAD modes.
	AEADTagSize = 16

	// MaxDatagramSize is the receive buffer size for inbound datagrams.
	MaxDatagramSize = 1500

	// MaxFrameSize is the absolute maximum size of one access unit (4MB).
	MaxFrameSize = 4 * 1024 * 1024

	// DiscoveryPacketSize is the size of the IP discovery request and response.
	DiscoveryPacketSize = 74
)

var (
	// ErrFrameEmpty indicates an empty frame was provided
	ErrFrameEmpty = errors.New("empty frame")

	// ErrFrameTooLarge indicates a frame exceeds the maximum size
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrInvalidMTU indicates an MTU outside the supported range
	ErrInvalidMTU = errors.New("invalid MTU")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFrameTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateFrame validates an access unit against MaxFrameSize.
func ValidateFrame(frame []byte) error {
	return ValidateSize(frame, MaxFrameSize)
}

// ValidateMTU checks that mtu is usable for packetization.
func ValidateMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxDatagramSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidMTU, mtu, MinMTU, MaxDatagramSize)
	}
	return nil
}

// WirePacketSize returns the on-wire size of an encrypted packet carrying a
// plaintext payload of the given length.
func WirePacketSize(plaintext int) int {
	return RTPHeaderSize + plaintext + AEADTagSize + NonceSuffixSize
}
