package receiver

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ErrInvalidPCM indicates PCM whose rate or layout cannot be converted.
var ErrInvalidPCM = errors.New("invalid PCM")

// Resampler converts decoded PCM to a fixed output rate and channel count
// using linear interpolation. Opus decodes at the rate of each packet's
// bandwidth, so one subscription can yield 8, 12, 16, 24 and 48 kHz PCM;
// the resampler follows rate changes and restarts interpolation on each.
type Resampler struct {
	outputRate  int
	channels    int
	inputRate   int
	position    float64
	lastSamples []int16
}

// NewResampler returns a resampler producing outputRate PCM with the given
// channel count (1 or 2).
func NewResampler(outputRate, channels int) (*Resampler, error) {
	if outputRate <= 0 {
		return nil, fmt.Errorf("%w: output rate %d", ErrInvalidPCM, outputRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidPCM, channels)
	}
	return &Resampler{
		outputRate:  outputRate,
		channels:    channels,
		lastSamples: make([]int16, channels),
	}, nil
}

// Resample converts pcm to the configured layout. Interpolation state
// carries across calls so consecutive packets join without clicks.
func (r *Resampler) Resample(pcm PCM) (PCM, error) {
	if pcm.SampleRate <= 0 || pcm.Channels < 1 || pcm.Channels > 2 {
		return PCM{}, fmt.Errorf("%w: rate %d channels %d", ErrInvalidPCM, pcm.SampleRate, pcm.Channels)
	}
	if len(pcm.Samples)%pcm.Channels != 0 {
		return PCM{}, fmt.Errorf("%w: %d samples not aligned to %d channels", ErrInvalidPCM, len(pcm.Samples), pcm.Channels)
	}

	input := remix(pcm.Samples, pcm.Channels, r.channels)
	if pcm.SampleRate != r.inputRate {
		if r.inputRate != 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Resampler.Resample",
				"old_rate": r.inputRate,
				"new_rate": pcm.SampleRate,
			}).Debug("Input rate changed")
		}
		r.Reset()
		r.inputRate = pcm.SampleRate
	}

	out := PCM{SampleRate: r.outputRate, Channels: r.channels}
	if r.inputRate == r.outputRate || len(input) == 0 {
		out.Samples = input
		r.remember(input)
		return out, nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	frames := len(input) / r.channels
	outFrames := int(float64(frames)/ratio + 0.5)
	out.Samples = make([]int16, 0, outFrames*r.channels)

	for i := 0; i < outFrames; i++ {
		index := int(math.Floor(r.position))
		frac := r.position - float64(index)
		for ch := 0; ch < r.channels; ch++ {
			out.Samples = append(out.Samples, r.sample(input, index, frac, ch, frames))
		}
		r.position += ratio
	}

	r.position -= float64(frames)
	r.remember(input)
	return out, nil
}

// Reset drops interpolation state, for use at stream discontinuities.
func (r *Resampler) Reset() {
	r.position = 0
	for i := range r.lastSamples {
		r.lastSamples[i] = 0
	}
}

func (r *Resampler) sample(input []int16, index int, frac float64, ch, frames int) int16 {
	switch {
	case index < 0:
		next := input[ch]
		return int16(float64(r.lastSamples[ch])*(1-frac) + float64(next)*frac)
	case index >= frames-1:
		return input[(frames-1)*r.channels+ch]
	default:
		a := input[index*r.channels+ch]
		b := input[(index+1)*r.channels+ch]
		return int16(float64(a)*(1-frac) + float64(b)*frac)
	}
}

func (r *Resampler) remember(input []int16) {
	if len(input) >= r.channels {
		copy(r.lastSamples, input[len(input)-r.channels:])
	}
}

// remix converts interleaved samples between mono and stereo.
func remix(samples []int16, from, to int) []int16 {
	switch {
	case from == to:
		return samples
	case from == 1:
		out := make([]int16, 0, len(samples)*2)
		for _, s := range samples {
			out = append(out, s, s)
		}
		return out
	default:
		out := make([]int16, 0, len(samples)/2)
		for i := 0; i+1 < len(samples); i += 2 {
			out = append(out, int16((int32(samples[i])+int32(samples[i+1]))/2))
		}
		return out
	}
}
