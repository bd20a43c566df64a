package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"github.com/opd-ai/voicestream/limits"
)

// Discovery packet types.
const (
	discoveryRequest  = 0x0001
	discoveryResponse = 0x0002

	// discoveryLength is the length field of a discovery packet: the size of
	// everything after the 4-byte type and length prefix.
	discoveryLength = limits.DiscoveryPacketSize - 4

	discoveryAddressOffset = 8
	discoveryPortOffset    = limits.DiscoveryPacketSize - 2
)

// ExternalAddress is the public address the media server observed for the
// local socket.
type ExternalAddress struct {
	IP   string
	Port uint16
}

// String returns the address in host:port form.
func (a ExternalAddress) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(int(a.Port)))
}

// BuildDiscoveryRequest returns the 74-byte discovery probe for ssrc.
//
//	0       2       4               8                              74
//	+-------+-------+---------------+-------------------------------+
//	| 0x0001|  70   |     SSRC      |          zero padding         |
//	+-------+-------+---------------+-------------------------------+
func BuildDiscoveryRequest(ssrc uint32) []byte {
	packet := make([]byte, limits.DiscoveryPacketSize)
	binary.BigEndian.PutUint16(packet[0:2], discoveryRequest)
	binary.BigEndian.PutUint16(packet[2:4], discoveryLength)
	binary.BigEndian.PutUint32(packet[4:8], ssrc)
	return packet
}

// ParseDiscoveryResponse extracts the external address from a discovery
// response. The IP is a NUL-terminated ASCII string starting at offset 8 and
// the port is a big-endian u16 in the final two bytes.
func ParseDiscoveryResponse(packet []byte) (ExternalAddress, error) {
	if len(packet) != limits.DiscoveryPacketSize {
		return ExternalAddress{}, fmt.Errorf("%w: length %d, want %d",
			ErrMalformedDiscovery, len(packet), limits.DiscoveryPacketSize)
	}
	if kind := binary.BigEndian.Uint16(packet[0:2]); kind != discoveryResponse {
		return ExternalAddress{}, fmt.Errorf("%w: packet type 0x%04x", ErrMalformedDiscovery, kind)
	}

	field := packet[discoveryAddressOffset:discoveryPortOffset]
	if end := bytes.IndexByte(field, 0); end >= 0 {
		field = field[:end]
	}
	ip := string(field)
	if net.ParseIP(ip) == nil {
		return ExternalAddress{}, fmt.Errorf("%w: invalid address %q", ErrMalformedDiscovery, ip)
	}

	return ExternalAddress{
		IP:   ip,
		Port: binary.BigEndian.Uint16(packet[discoveryPortOffset:]),
	}, nil
}
