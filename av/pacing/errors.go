package pacing

import "errors"

var (
	// ErrAlreadyRun indicates Run was called on a stream that already ran.
	// A stream paces exactly one source.
	ErrAlreadyRun = errors.New("stream already consumed a source")

	// ErrNilSender indicates a stream built without a sender.
	ErrNilSender = errors.New("sender cannot be nil")
)
