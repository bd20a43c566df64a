package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v3/pkg/media/h264reader"
)

// DefaultFrameRate is used for raw H.264 streams when no rate is given.
var DefaultFrameRate = Rational{Num: 30, Den: 1}

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// H264Source groups NAL units of a raw Annex-B H.264 stream into access
// units. A unit ends at each coded slice, so streams must carry one slice
// per picture. Access unit delimiters are dropped; parameter sets and SEI
// travel with the following slice.
type H264Source struct {
	reader   *h264reader.H264Reader
	timeBase Rational
	frame    int64
	pending  []byte
	keyframe bool
}

// OpenH264 returns a source reading r at the given frame rate.
func OpenH264(r io.Reader, frameRate Rational) (*H264Source, error) {
	if frameRate == (Rational{}) {
		frameRate = DefaultFrameRate
	}
	if !frameRate.Valid() {
		return nil, fmt.Errorf("%w: frame rate %v", ErrInvalidTimeBase, frameRate)
	}
	reader, err := h264reader.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: h264: %w", ErrMalformedInput, err)
	}
	return &H264Source{reader: reader, timeBase: frameRate.Inverse()}, nil
}

// Next returns the next access unit in Annex-B form with 4-byte start codes.
func (s *H264Source) Next(ctx context.Context) (AccessUnit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return AccessUnit{}, err
		}

		nal, err := s.reader.NextNAL()
		if errors.Is(err, io.EOF) {
			// parameter sets without a slice do not form a frame
			return AccessUnit{}, io.EOF
		}
		if err != nil {
			return AccessUnit{}, fmt.Errorf("%w: h264: %w", ErrMalformedInput, err)
		}

		switch nal.UnitType {
		case h264reader.NalUnitTypeAUD:
			continue
		case h264reader.NalUnitTypeCodedSliceIdr:
			s.keyframe = true
		}

		s.pending = append(s.pending, annexBStartCode...)
		s.pending = append(s.pending, nal.Data...)

		if nal.UnitType != h264reader.NalUnitTypeCodedSliceIdr &&
			nal.UnitType != h264reader.NalUnitTypeCodedSliceNonIdr {
			continue
		}

		unit := AccessUnit{
			Data:      s.pending,
			Timestamp: s.frame,
			Length:    1,
			TimeBase:  s.timeBase,
			Keyframe:  s.keyframe,
		}
		s.frame++
		s.pending = nil
		s.keyframe = false
		return unit, nil
	}
}
