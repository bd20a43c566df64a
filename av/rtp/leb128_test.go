package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEB128(t *testing.T) {
	tests := []struct {
		value   uint64
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{1 << 32, []byte{0x80, 0x80, 0x80, 0x80, 0x10}},
	}

	for _, tt := range tests {
		encoded := EncodeLEB128(tt.value)
		assert.Equal(t, tt.encoded, encoded, "encode %d", tt.value)

		value, n, err := DecodeLEB128(append(encoded, 0xff))
		require.NoError(t, err)
		assert.Equal(t, tt.value, value)
		assert.Equal(t, len(tt.encoded), n)
	}
}

func TestDecodeLEB128Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"unterminated", []byte{0x80, 0x80}},
		{"longer than eight bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeLEB128(tt.input)
			assert.ErrorIs(t, err, ErrMalformedLEB128)
		})
	}
}
