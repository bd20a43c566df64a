// Package crypto implements the packet encryption layer of the voice media
// transport.
//
// Every RTP and RTCP packet sent or received over the media UDP session is
// protected with one of two AEAD constructions negotiated by the signaling
// collaborator:
//
//   - [ModeAES256GCM]: AES-256 in GCM mode with a 12-byte nonce. The clear RTP
//     header is authenticated as additional data.
//   - [ModeXSalsa20Poly1305Lite]: NaCl secretbox (XSalsa20-Poly1305) with a
//     24-byte nonce, of which only the first 4 bytes are meaningful.
//
// # Nonce Discipline
//
// Both modes use an incrementing 32-bit counter as nonce material. The counter
// is written big-endian into the first 4 bytes of a zero-padded nonce buffer
// and those 4 bytes travel at the end of every packet so the remote can
// rebuild the nonce:
//
//	nonce := crypto.NonceFromCounter(mode, counter)
//	sealed, _ := codec.Encrypt(payload, nonce, header)
//	packet := append(append(header, sealed...), crypto.NonceSuffix(nonce)...)
//
// On receive, the suffix is copied back into a fresh buffer:
//
//	nonce, _ := crypto.NonceFromSuffix(mode, packet[len(packet)-4:])
//	payload, err := codec.Decrypt(packet[12:len(packet)-4], nonce, packet[:12])
//
// A decryption failure wraps [ErrDecryptFailed]. It is a per-packet condition;
// callers drop the packet and keep the session alive.
//
// # Thread Safety
//
// A [Codec] is immutable after construction and safe for concurrent use.
package crypto
