// Package pacing schedules access units onto the wire in real time.
//
// A Stream consumes a media.Source and hands every access unit to a
// Sender, then sleeps so that the wall clock elapsed since the first frame
// tracks the presentation timestamps. The sleep is recomputed from the
// stream baseline on every frame, so send jitter and timer rounding do not
// accumulate.
//
// Two streams can be linked into a SyncPair. A linked stream that is ahead
// of its counterpart by more than its sync tolerance waits until the
// counterpart catches up, ends, or the pair is unlinked:
//
//	opts := pacing.DefaultOptions()
//	audio, _ := pacing.NewStream(pacing.KindAudio, pacing.SendFunc(conn.SendAudioFrame), opts)
//	video, _ := pacing.NewStream(pacing.KindVideo, pacing.SendFunc(conn.SendVideoFrame), opts)
//	pair := pacing.Link(audio, video)
//	defer pair.Unlink()
//
//	go audio.Run(ctx, audioSrc)
//	err := video.Run(ctx, videoSrc)
//
// Waits use channel broadcasts rather than polling and every wait observes
// context cancellation.
package pacing
