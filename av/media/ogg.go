package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/sirupsen/logrus"
)

var opusTagsSignature = []byte("OpusTags")

// noGranule marks a page on which no packet ends.
const noGranule = ^uint64(0)

// OggSource reads Opus packets from an Ogg container, one packet per page.
// Timestamps count 48 kHz samples.
type OggSource struct {
	reader  *oggreader.OggReader
	header  *oggreader.OggHeader
	pts     int64
	granule uint64
	pages   int
}

// OpenOgg parses the OpusHead page from r.
func OpenOgg(r io.Reader) (*OggSource, error) {
	reader, header, err := oggreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("%w: ogg header: %w", ErrMalformedInput, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenOgg",
		"channels":    header.Channels,
		"sample_rate": header.SampleRate,
		"pre_skip":    header.PreSkip,
	}).Debug("Opened Ogg/Opus stream")

	return &OggSource{reader: reader, header: header}, nil
}

// Channels returns the channel count from the OpusHead page.
func (s *OggSource) Channels() int { return int(s.header.Channels) }

// Next returns the next Opus packet or io.EOF. The OpusTags page is skipped.
// Packet length comes from the Opus TOC; the granule position is used when
// the TOC cannot be read. A page whose granule advances past its packet's
// length carries several packets and is rejected as malformed.
func (s *OggSource) Next(ctx context.Context) (AccessUnit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return AccessUnit{}, err
		}

		payload, page, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return AccessUnit{}, io.EOF
		}
		if err != nil {
			return AccessUnit{}, fmt.Errorf("%w: ogg page %d: %w", ErrMalformedInput, s.pages, err)
		}
		s.pages++

		if len(payload) == 0 || bytes.HasPrefix(payload, opusTagsSignature) {
			continue
		}

		granuleKnown := page.GranulePosition != noGranule
		var delta int64
		if granuleKnown && page.GranulePosition > s.granule {
			delta = int64(page.GranulePosition - s.granule)
		}

		var length int64
		if d, err := OpusPacketDuration(payload); err == nil {
			length = d.Microseconds() * 48 / 1000
		} else if delta > 0 {
			length = delta
		} else {
			return AccessUnit{}, err
		}
		// The reader joins a page's segments, so a page holding several
		// packets cannot be split back into frames.
		if delta > length {
			return AccessUnit{}, fmt.Errorf("%w: ogg page %d spans %d samples but its first packet only %d; one packet per page is required",
				ErrMalformedInput, s.pages, delta, length)
		}
		if granuleKnown {
			s.granule = page.GranulePosition
		}

		unit := AccessUnit{
			Data:      payload,
			Timestamp: s.pts,
			Length:    length,
			TimeBase:  TimeBaseOpus,
		}
		s.pts += length
		return unit, nil
	}
}
