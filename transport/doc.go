// Package transport implements the UDP media session of a voice connection.
//
// A session opens one datagram socket towards the media server assigned by
// signaling, performs the 74-byte IP discovery exchange and then carries
// every encrypted RTP and RTCP packet of the connection. It owns the nonce
// counter shared by all packetizers and holds one audio and one video
// packetizer.
//
// # Lifecycle
//
// A MediaUDP starts in the Connecting state. Dial returns once discovery
// succeeded; the session becomes Ready as soon as both discovery completed
// and a secret key is known (either passed in SessionParams or supplied
// later with SetSecretKey). Close moves it to Stopped, which is terminal.
//
//	conn, err := transport.Dial(ctx, params, transport.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	conn.OnPacket(recv.HandlePacket)
//	err = conn.SendAudioFrame(opusFrame, 20*time.Millisecond)
//
// # Failure handling
//
// Discovery failures and socket creation failures are fatal: Dial returns an
// error wrapping ErrHandshakeFailed, ErrMalformedDiscovery or ErrSocket and
// the socket is released. A write error on an established session is
// returned to the caller of that send and does not stop the session.
package transport
