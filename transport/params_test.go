package transport

import (
	"testing"

	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/stretchr/testify/assert"
)

func TestSessionParamsValidate(t *testing.T) {
	valid := SessionParams{
		SSRC:      1234,
		Address:   "127.0.0.1",
		Port:      50000,
		Mode:      crypto.ModeAES256GCM,
		SecretKey: make([]byte, crypto.KeySize),
	}

	tests := []struct {
		name    string
		mutate  func(p *SessionParams)
		wantErr error
	}{
		{"valid", func(p *SessionParams) {}, nil},
		{"key supplied later", func(p *SessionParams) { p.SecretKey = nil }, nil},
		{"zero ssrc", func(p *SessionParams) { p.SSRC = 0 }, ErrInvalidParams},
		{"empty address", func(p *SessionParams) { p.Address = "" }, ErrInvalidParams},
		{"port zero", func(p *SessionParams) { p.Port = 0 }, ErrInvalidParams},
		{"port too large", func(p *SessionParams) { p.Port = 70000 }, ErrInvalidParams},
		{"unknown mode", func(p *SessionParams) { p.Mode = 0 }, crypto.ErrUnsupportedMode},
		{"short key", func(p *SessionParams) { p.SecretKey = []byte{1, 2, 3} }, crypto.ErrInvalidKey},
		{"vp9 video", func(p *SessionParams) { p.VideoCodec = rtp.CodecVP9 }, rtp.ErrUnsupportedCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestSessionParamsDefaults(t *testing.T) {
	p := SessionParams{SSRC: 10, Address: "::1", Port: 9}

	assert.Equal(t, uint32(11), p.videoSSRC())
	assert.Equal(t, rtp.CodecH264, p.videoCodec())
	assert.Equal(t, "[::1]:9", p.RemoteAddr())

	p.VideoSSRC = 99
	p.VideoCodec = rtp.CodecAV1
	assert.Equal(t, uint32(99), p.videoSSRC())
	assert.Equal(t, rtp.CodecAV1, p.videoCodec())
}
