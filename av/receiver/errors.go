package receiver

import "errors"

var (
	// ErrMalformedPacket indicates an inbound datagram too short or with a
	// corrupt header extension.
	ErrMalformedPacket = errors.New("malformed voice packet")

	// ErrMalformedSignaling indicates a signaling message that is not valid JSON
	// or lacks required fields.
	ErrMalformedSignaling = errors.New("malformed signaling message")

	// ErrSubscriptionClosed is returned when reading from a subscription
	// that ended without error.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrReceiverClosed ends subscriptions still open when the receiver closes.
	ErrReceiverClosed = errors.New("receiver closed")
)
