package media

import "errors"

var (
	// ErrMalformedInput indicates a container or bitstream that could not be parsed.
	ErrMalformedInput = errors.New("malformed media input")

	// ErrUnsupportedFormat indicates a container or codec with no source.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrInvalidTimeBase indicates a time base with a zero or negative component.
	ErrInvalidTimeBase = errors.New("invalid time base")
)
