package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opd-ai/voicestream"
	"github.com/opd-ai/voicestream/av/receiver"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/sirupsen/logrus"
)

// packetSink stores the packets of one subscription.
type packetSink interface {
	WritePacket(pkt *rtp.Packet) error
	Close() error
}

// oggSink remuxes Opus packets into an Ogg file without decoding.
type oggSink struct {
	w *oggwriter.OggWriter
}

func newOggSink(path string) (*oggSink, error) {
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &oggSink{w: w}, nil
}

func (s *oggSink) WritePacket(pkt *rtp.Packet) error { return s.w.WriteRTP(pkt) }

func (s *oggSink) Close() error { return s.w.Close() }

// pcmSink decodes Opus packets to raw 48 kHz stereo s16le PCM.
type pcmSink struct {
	f         *os.File
	decoder   *receiver.OpusDecoder
	resampler *receiver.Resampler
	log       *logrus.Entry
}

func newPCMSink(path string) (*pcmSink, error) {
	resampler, err := receiver.NewResampler(48000, 2)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &pcmSink{
		f:         f,
		decoder:   receiver.NewOpusDecoder(),
		resampler: resampler,
		log:       logrus.WithField("file", path),
	}, nil
}

func (s *pcmSink) WritePacket(pkt *rtp.Packet) error {
	pcm, err := s.decoder.Decode(pkt.Payload)
	if err != nil {
		// The decoder does not handle every Opus mode; skip what it rejects.
		s.log.WithFields(logrus.Fields{
			"function": "pcmSink.WritePacket",
			"sequence": pkt.SequenceNumber,
			"error":    err.Error(),
		}).Debug("Skipping undecodable packet")
		return nil
	}
	if pcm, err = s.resampler.Resample(pcm); err != nil {
		return err
	}
	_, err = s.f.Write(pcm.Bytes())
	return err
}

func (s *pcmSink) Close() error { return s.f.Close() }

// recorder drains one subscription per recorded user.
type recorder struct {
	wg   sync.WaitGroup
	subs []*receiver.Subscription
}

func splitUsers(list string) []string {
	var users []string
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	return users
}

func recordingPath(dir, userID string, pcm bool) string {
	ext := ".ogg"
	if pcm {
		ext = ".pcm"
	}
	return filepath.Join(dir, "record_"+userID+ext)
}

func startRecording(session *voicestream.Session, config *CLIConfig) (*recorder, error) {
	if err := os.MkdirAll(config.recordDir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}

	rec := &recorder{}
	for _, user := range splitUsers(config.recordUsers) {
		path := recordingPath(config.recordDir, user, config.recordPCM)
		var (
			sink packetSink
			err  error
		)
		if config.recordPCM {
			sink, err = newPCMSink(path)
		} else {
			sink, err = newOggSink(path)
		}
		if err != nil {
			rec.wait()
			return nil, err
		}

		sub := session.Receiver().Subscribe(user, receiver.AfterSilence(config.silence))
		rec.subs = append(rec.subs, sub)
		rec.wg.Add(1)
		go rec.drain(sub, sink, path)
	}
	return rec, nil
}

func (r *recorder) drain(sub *receiver.Subscription, sink packetSink, path string) {
	defer r.wg.Done()
	log := logrus.WithFields(logrus.Fields{
		"function": "recorder.drain",
		"user_id":  sub.UserID(),
		"file":     path,
	})
	log.Info("Recording started")

	packets := 0
	for pkt := range sub.Packets() {
		if err := sink.WritePacket(pkt); err != nil {
			log.WithField("error", err.Error()).Error("Failed to write recording")
			sub.Close()
			break
		}
		packets++
	}
	if err := sink.Close(); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to close recording")
	}

	entry := log.WithField("packets", packets)
	if err := sub.Err(); err != nil {
		entry.WithField("error", err.Error()).Warn("Recording ended with error")
		return
	}
	entry.Info("Recording finished")
}

// waitOrCancel blocks until every recording ends or ctx is done.
func (r *recorder) waitOrCancel(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// wait ends every subscription and waits for the files to be closed.
func (r *recorder) wait() {
	for _, sub := range r.subs {
		sub.Close()
	}
	r.wg.Wait()
}

// feedSignaling applies newline-delimited gateway messages from path.
func feedSignaling(ctx context.Context, session *voicestream.Session, path string) {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "feedSignaling",
				"path":     path,
				"error":    err.Error(),
			}).Error("Failed to open signaling input")
			return
		}
		defer f.Close()
		in = f
	}
	applySignaling(ctx, session, in)
}

func applySignaling(ctx context.Context, session *voicestream.Session, in io.Reader) int {
	applied := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() && ctx.Err() == nil {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.HandleSignaling([]byte(line)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "applySignaling",
				"error":    err.Error(),
			}).Warn("Ignoring signaling message")
			continue
		}
		applied++
	}
	return applied
}
