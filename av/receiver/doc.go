// Package receiver demultiplexes inbound voice packets into per-user audio
// subscriptions.
//
// The receiver learns which SSRC belongs to which user from signaling
// events (speaking, video and client disconnect), decrypts each inbound
// datagram with the session key and hands the Opus payload to the user's
// subscription, if one exists:
//
//	recv := receiver.New(conn, receiver.DefaultOptions())
//	conn.OnPacket(recv.HandlePacket)
//	gateway.OnMessage(func(msg []byte) { _ = recv.HandleSignaling(msg) })
//
//	sub := recv.Subscribe(userID, receiver.AfterSilence(3*time.Second))
//	for pkt := range sub.Packets() {
//	    pcm, err := decoder.Decode(pkt.Payload)
//	    ...
//	}
//	if err := sub.Err(); err != nil {
//	    log.Printf("subscription failed: %v", err)
//	}
//
// Packets from unknown SSRCs are dropped. A packet that fails to decrypt
// ends only the sending user's subscription, with the cause available
// from Subscription.Err.
//
// Subscriptions end according to their EndBehavior: never on their own,
// after a period without non-silent frames, or after a period without any
// frame. The speaking map timestamps every packet from a known user and
// reports start and end of speech over a sliding window.
package receiver
