package transport

import "errors"

var (
	// ErrNotReady indicates a send attempted before the session reached Ready.
	ErrNotReady = errors.New("media session is not ready")

	// ErrHandshakeFailed indicates IP discovery did not complete.
	ErrHandshakeFailed = errors.New("ip discovery handshake failed")

	// ErrMalformedDiscovery indicates a discovery response that could not be parsed.
	ErrMalformedDiscovery = errors.New("malformed ip discovery response")

	// ErrSocket indicates a socket could not be created or written.
	ErrSocket = errors.New("media socket error")

	// ErrClosed indicates use of a stopped session.
	ErrClosed = errors.New("media session closed")

	// ErrInvalidParams indicates incomplete or inconsistent session parameters.
	ErrInvalidParams = errors.New("invalid session parameters")
)

// errForeignSource marks a datagram that did not come from the media server.
var errForeignSource = errors.New("datagram from foreign source")
