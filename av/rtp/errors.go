package rtp

import (
	"errors"

	"github.com/opd-ai/voicestream/limits"
)

// Sentinel errors for packetization.
var (
	// ErrUnsupportedCodec indicates a codec with no packetizer.
	ErrUnsupportedCodec = errors.New("packetizer not implemented for codec")

	// ErrChunkTooLarge indicates a chunk exceeded the MTU after fragmentation.
	// This is a programming error in the fragmentation logic or misuse.
	ErrChunkTooLarge = errors.New("chunk is larger than mtu")

	// ErrMalformedOBU indicates an AV1 OBU without a size field or with a
	// truncated body.
	ErrMalformedOBU = errors.New("malformed AV1 OBU")

	// ErrMalformedNAL indicates Annex-B input without a start code.
	ErrMalformedNAL = errors.New("malformed Annex-B NAL unit stream")

	// ErrMalformedLEB128 indicates an unterminated or oversized LEB128 value.
	ErrMalformedLEB128 = errors.New("malformed LEB128 value")

	// ErrNilTransport indicates a packetizer built without a transport.
	ErrNilTransport = errors.New("transport cannot be nil")

	// ErrEmptyFrame indicates an empty access unit.
	ErrEmptyFrame = limits.ErrFrameEmpty

	// ErrNilSealer indicates a packetizer built without an encryption codec.
	ErrNilSealer = errors.New("sealer cannot be nil")
)
