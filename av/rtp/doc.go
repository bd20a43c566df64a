// Package rtp converts encoded access units into encrypted RTP packets for
// the voice media transport.
//
// This package owns the send-side wire format. It uses the pion/rtp library
// for the fixed RTP header and pion/rtcp for periodic sender reports, and
// implements the codec payload formats itself because the remote expects a
// header extension and nonce suffix inside each packet.
//
// # Packet Layout
//
// Every media packet written by a packetizer has this layout:
//
//	+----------------+------------------------------------------+-----------+
//	| RTP header     | sealed( [ext] [descriptor] chunk )        | nonce[:4] |
//	| 12 bytes clear | AEAD ciphertext + 16 byte tag             | 4 bytes   |
//	+----------------+------------------------------------------+-----------+
//
// Video packets set the RTP X bit and start the plaintext with a one-byte
// header extension block (BE DE 00 01 51 00 00 00).
//
// # Codecs
//
//   - Opus: one packet per frame, no fragmentation.
//   - VP8: MTU fragments, each prefixed with a 4-byte payload descriptor
//     carrying the S bit and a 15-bit picture id.
//   - H.264 / H.265: Annex-B input split into NAL units. Units larger than
//     the MTU become FU-A (H.264) or FU (H.265) fragments; small units may be
//     aggregated into STAP-A / AP packets when Options.Aggregate is set.
//   - AV1: input split into OBUs (obu_has_size_field required), each OBU MTU
//     fragmented behind a 1-byte aggregation header.
//
// # Packetizer Interface
//
//	p, err := rtp.NewPacketizer(rtp.CodecH264, ssrc, conn, codec, rtp.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = p.SendFrame(accessUnit, 33*time.Millisecond)
//
// The sequence number advances once per packet and the RTP timestamp once
// per frame, by the frame duration expressed in the codec clock rate. Both
// wrap silently.
//
// # Thread Safety
//
// Packetizers serialize SendFrame internally and are safe for concurrent
// use, though each direction normally has a single pacing goroutine.
package rtp
