package voicestream

import (
	"context"
	"errors"
	"sync"

	"github.com/opd-ai/voicestream/av/media"
	"github.com/opd-ai/voicestream/av/pacing"
	"github.com/opd-ai/voicestream/transport"
	"github.com/sirupsen/logrus"
)

// PlayStream paces video and audio to the media server until both sources
// are exhausted. Either source may be nil. With both present the streams are
// linked so neither runs ahead of the other by more than the sync tolerance.
//
// A failing stream cancels the other; the returned error joins both causes.
// Cancelling ctx stops playback and returns ctx's error.
func (s *Session) PlayStream(ctx context.Context, video, audio media.Source) error {
	return s.play(ctx, video, audio, nil)
}

// play runs the streams once the session is claimed for playback. prepare,
// if set, runs after the claim and before any stream starts.
func (s *Session) play(ctx context.Context, video, audio media.Source, prepare func() error) error {
	if video == nil && audio == nil {
		return ErrNoSources
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if !s.conn.IsReady() {
		s.mu.Unlock()
		return transport.ErrNotReady
	}
	if s.playing {
		s.mu.Unlock()
		return ErrAlreadyPlaying
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.playing = true
	s.stop = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.playing = false
		s.stop = nil
		s.mu.Unlock()
	}()

	if prepare != nil {
		if err := prepare(); err != nil {
			return err
		}
	}

	var streams []*pacing.Stream
	var sources []media.Source
	if video != nil {
		vs, err := pacing.NewStream(pacing.KindVideo, pacing.SendFunc(s.conn.SendVideoFrame), s.options.Pacing)
		if err != nil {
			return err
		}
		streams = append(streams, vs)
		sources = append(sources, video)
	}
	if audio != nil {
		as, err := pacing.NewStream(pacing.KindAudio, pacing.SendFunc(s.conn.SendAudioFrame), s.options.Pacing)
		if err != nil {
			return err
		}
		streams = append(streams, as)
		sources = append(sources, audio)
	}
	if len(streams) == 2 {
		pair := pacing.Link(streams[0], streams[1])
		defer pair.Unlink()
	}

	log := logrus.WithFields(logrus.Fields{
		"function":   "Session.PlayStream",
		"session_id": s.conn.ID().String(),
		"video":      video != nil,
		"audio":      audio != nil,
	})
	log.Info("Playback started")

	errs := make([]error, len(streams))
	var wg sync.WaitGroup
	for i := range streams {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := streams[i].Run(ctx, sources[i]); err != nil {
				errs[i] = err
				cancel()
			}
		}(i)
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Playback stopped")
		return err
	}
	log.Info("Playback finished")
	return nil
}

// PlayDemuxer binds the session's video codec to the demuxer's and plays
// its sources. The codec is left untouched when playback cannot start.
func (s *Session) PlayDemuxer(ctx context.Context, demux *media.Demuxer) error {
	var rebind func() error
	if demux.Video != nil {
		rebind = func() error { return s.conn.SetVideoCodec(demux.VideoCodec) }
	}
	return s.play(ctx, demux.Video, demux.Audio, rebind)
}
