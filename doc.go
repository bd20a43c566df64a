// Package voicestream implements the UDP media plane of a Discord-style voice
// connection: IP discovery, encrypted RTP transport, paced audio and video
// playback, and per-user reception of inbound audio.
//
// The WebSocket voice gateway is not part of this package. The caller
// obtains the server address, the SSRC and later the session key from the
// gateway and hands them to [Join].
//
// # Getting Started
//
// Join a session, then stream a pair of files:
//
//	params := transport.SessionParams{
//	    SSRC:    ready.SSRC,
//	    Address: ready.IP,
//	    Port:    ready.Port,
//	    Mode:    crypto.ModeAES256GCM,
//	}
//
//	session, err := voicestream.Join(ctx, params, voicestream.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	// Send session.Transport().ExternalAddr() to the gateway in
//	// SELECT_PROTOCOL, then apply the key from SESSION_DESCRIPTION.
//	if err := session.SetSecretKey(crypto.ModeAES256GCM, key); err != nil {
//	    log.Fatal(err)
//	}
//
//	demux, err := media.OpenFiles("clip.ivf", "clip.ogg", media.DemuxOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer demux.Close()
//
//	err = session.PlayDemuxer(ctx, demux)
//
// # Core Types
//
//   - [Session]: one joined media connection with at most one playback
//   - [Options]: transport, pacing and receiver configuration
//
// # Receiving Audio
//
// Forward speaking, video and disconnect gateway events to
// [Session.HandleSignaling] so packets can be attributed to users, then
// subscribe:
//
//	sub := session.Receiver().Subscribe(userID, receiver.AfterSilence(time.Second))
//	for pkt := range sub.Packets() {
//	    // pkt.Payload is one decrypted Opus frame.
//	}
//
// # Packages
//
//   - transport: IP discovery, connection state and the encrypted UDP socket
//   - crypto: AES-256-GCM and XSalsa20-Poly1305 lite packet sealing
//   - av/rtp: RTP packetizers for Opus, H.264, H.265, VP8 and AV1
//   - av/media: IVF, Ogg/Opus and Annex B file sources
//   - av/pacing: real-time frame pacing and audio/video synchronization
//   - av/receiver: SSRC mapping, speaking detection and audio subscriptions
//   - metrics: Prometheus collectors shared by all of the above
//
// # Thread Safety
//
// Session methods may be called from any goroutine. Close stops playback,
// ends every subscription and releases the socket.
package voicestream
