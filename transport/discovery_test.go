package transport

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiscoveryResponse mirrors what a media server answers to a probe.
func buildDiscoveryResponse(ssrc uint32, ip string, port uint16) []byte {
	packet := make([]byte, 74)
	binary.BigEndian.PutUint16(packet[0:2], discoveryResponse)
	binary.BigEndian.PutUint16(packet[2:4], 70)
	binary.BigEndian.PutUint32(packet[4:8], ssrc)
	copy(packet[8:], ip)
	binary.BigEndian.PutUint16(packet[72:], port)
	return packet
}

func TestBuildDiscoveryRequest(t *testing.T) {
	packet := BuildDiscoveryRequest(0xdeadbeef)

	require.Len(t, packet, 74)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x46, 0xde, 0xad, 0xbe, 0xef}, packet[:8])
	for i, b := range packet[8:] {
		assert.Zero(t, b, "byte %d", i+8)
	}
}

func TestParseDiscoveryResponse(t *testing.T) {
	valid := buildDiscoveryResponse(1, "1.2.3.4", 50000)

	wrongType := append([]byte(nil), valid...)
	wrongType[1] = 0x01

	badIP := buildDiscoveryResponse(1, "not-an-ip", 1)

	unterminated := buildDiscoveryResponse(1, "", 80)
	copy(unterminated[8:72], []byte("203.0.113.9"))
	for i := 8 + len("203.0.113.9"); i < 72; i++ {
		unterminated[i] = '0'
	}

	tests := []struct {
		name    string
		packet  []byte
		want    ExternalAddress
		wantErr error
	}{
		{"valid", valid, ExternalAddress{IP: "1.2.3.4", Port: 50000}, nil},
		{"ipv6", buildDiscoveryResponse(1, "2001:db8::1", 443), ExternalAddress{IP: "2001:db8::1", Port: 443}, nil},
		{"wrong type", wrongType, ExternalAddress{}, ErrMalformedDiscovery},
		{"short packet", valid[:40], ExternalAddress{}, ErrMalformedDiscovery},
		{"long packet", append(append([]byte(nil), valid...), 0), ExternalAddress{}, ErrMalformedDiscovery},
		{"invalid ip", badIP, ExternalAddress{}, ErrMalformedDiscovery},
		{"missing terminator", unterminated, ExternalAddress{}, ErrMalformedDiscovery},
		{"empty ip", buildDiscoveryResponse(1, "", 80), ExternalAddress{}, ErrMalformedDiscovery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDiscoveryResponse(tt.packet)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExternalAddressString(t *testing.T) {
	assert.Equal(t, "1.2.3.4:5", ExternalAddress{IP: "1.2.3.4", Port: 5}.String())
	assert.Equal(t, "[::1]:5", ExternalAddress{IP: "::1", Port: 5}.String())
}
