package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResamplerValidation(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
		wantErr  bool
	}{
		{"stereo 48k", 48000, 2, false},
		{"mono 16k", 16000, 1, false},
		{"zero rate", 0, 2, true},
		{"no channels", 48000, 0, true},
		{"surround", 48000, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResampler(tt.rate, tt.channels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPCM)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResamplerSameRate(t *testing.T) {
	r, err := NewResampler(48000, 1)
	require.NoError(t, err)

	out, err := r.Resample(PCM{Samples: []int16{1, 2, 3}, SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, out.Samples)
	assert.Equal(t, 48000, out.SampleRate)
}

func TestResamplerUpsamples(t *testing.T) {
	r, err := NewResampler(48000, 1)
	require.NoError(t, err)

	// 20ms at 8 kHz becomes 20ms at 48 kHz.
	in := make([]int16, 160)
	for i := range in {
		in[i] = int16(i * 6)
	}
	out, err := r.Resample(PCM{Samples: in, SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	require.Len(t, out.Samples, 960)

	assert.Equal(t, int16(0), out.Samples[0])
	assert.InDelta(t, 1, out.Samples[1], 1)
	assert.InDelta(t, 6, out.Samples[6], 1)
	for i := 1; i < 954; i++ {
		assert.GreaterOrEqual(t, out.Samples[i], out.Samples[i-1])
	}

	next, err := r.Resample(PCM{Samples: in, SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	assert.Len(t, next.Samples, 960)
	assert.InDelta(t, 0, next.Samples[0], 1)
}

func TestResamplerDownsamplesStereo(t *testing.T) {
	r, err := NewResampler(24000, 2)
	require.NoError(t, err)

	in := make([]int16, 0, 96)
	for i := 0; i < 48; i++ {
		in = append(in, 100, -100)
	}
	out, err := r.Resample(PCM{Samples: in, SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	require.Len(t, out.Samples, 48)
	for i := 0; i < len(out.Samples); i += 2 {
		assert.Equal(t, int16(100), out.Samples[i])
		assert.Equal(t, int16(-100), out.Samples[i+1])
	}
}

func TestResamplerRemix(t *testing.T) {
	up, err := NewResampler(48000, 2)
	require.NoError(t, err)
	out, err := up.Resample(PCM{Samples: []int16{5, 7}, SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 5, 7, 7}, out.Samples)
	assert.Equal(t, 2, out.Channels)

	down, err := NewResampler(48000, 1)
	require.NoError(t, err)
	out, err = down.Resample(PCM{Samples: []int16{10, 20, -4, 4}, SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	assert.Equal(t, []int16{15, 0}, out.Samples)
}

func TestResamplerRejectsInvalidPCM(t *testing.T) {
	r, err := NewResampler(48000, 2)
	require.NoError(t, err)

	_, err = r.Resample(PCM{Samples: []int16{1, 2, 3}, SampleRate: 48000, Channels: 2})
	assert.ErrorIs(t, err, ErrInvalidPCM)

	_, err = r.Resample(PCM{Samples: []int16{1}, SampleRate: 0, Channels: 1})
	assert.ErrorIs(t, err, ErrInvalidPCM)
}
