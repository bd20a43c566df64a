// Package limits provides centralized packet and frame size constants and
// validation functions for the voice media transport. This package ensures
// consistent size enforcement across the packetizers, the UDP transport and
// the receive pipeline.
//
// # Size Hierarchy
//
// The package defines a hierarchy of size limits used at different stages of
// media processing:
//
//   - DefaultMTU (1200 bytes): The largest codec payload chunk a single RTP
//     packet carries before fragmentation. This leaves room for the RTP header,
//     header extension, payload descriptor, AEAD tag and nonce suffix within a
//     typical 1500 byte Ethernet MTU.
//
//   - RTPHeaderSize (12 bytes): The fixed RTP header, sent in clear.
//
//   - NonceSuffixSize (4 bytes): The wire-transmitted nonce counter appended to
//     every encrypted packet.
//
//   - MaxDatagramSize (1500 bytes): The receive buffer size for inbound
//     datagrams. Larger datagrams are truncated by the socket and dropped.
//
//   - MaxFrameSize (4MB): The absolute maximum for a single access unit. This
//     prevents memory exhaustion from a broken upstream encoder.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit violations:
//
//	err := limits.ValidateFrame(frame)
//	if err != nil {
//	    // Handle validation error (ErrFrameEmpty or ErrFrameTooLarge)
//	}
//
// For custom size limits, use the generic ValidateSize function:
//
//	err := limits.ValidateSize(data, 4096)
//
// WirePacketSize gives the sealed size of a plaintext payload; packetizers
// refuse to write a packet whose wire size exceeds MaxDatagramSize.
package limits
