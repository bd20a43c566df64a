package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/sirupsen/logrus"
)

// DemuxOptions configures OpenFiles.
type DemuxOptions struct {
	// FrameRate applies to raw H.264 input, which carries no timing.
	FrameRate Rational
}

// Demuxer owns the files backing a video and an audio source. Close must be
// called once the sources are no longer read.
type Demuxer struct {
	// Video is nil when no video file was given.
	Video Source
	// VideoCodec is the codec of Video.
	VideoCodec rtp.Codec
	// Audio is nil when no audio file was given.
	Audio Source

	files []*os.File
}

// OpenFiles opens the given files and builds a source for each from its
// extension: .ivf, .h264/.264 for video and .ogg/.opus for audio. Either
// path may be empty.
func OpenFiles(videoPath, audioPath string, opts DemuxOptions) (*Demuxer, error) {
	if videoPath == "" && audioPath == "" {
		return nil, fmt.Errorf("%w: no input files", ErrUnsupportedFormat)
	}
	d := &Demuxer{}

	if videoPath != "" {
		if err := d.openVideo(videoPath, opts); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	if audioPath != "" {
		if err := d.openAudio(audioPath); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenFiles",
		"video":       videoPath,
		"video_codec": d.VideoCodec.String(),
		"audio":       audioPath,
	}).Info("Media files opened")
	return d, nil
}

func (d *Demuxer) open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	d.files = append(d.files, f)
	return f, nil
}

func (d *Demuxer) openVideo(path string, opts DemuxOptions) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ivf" && ext != ".h264" && ext != ".264" {
		return fmt.Errorf("%w: video file %s", ErrUnsupportedFormat, path)
	}
	f, err := d.open(path)
	if err != nil {
		return err
	}

	switch ext {
	case ".ivf":
		src, err := OpenIVF(f)
		if err != nil {
			return err
		}
		if !src.Codec().Packetizable() {
			return fmt.Errorf("%w: %v video", ErrUnsupportedFormat, src.Codec())
		}
		d.Video, d.VideoCodec = src, src.Codec()
	default:
		src, err := OpenH264(f, opts.FrameRate)
		if err != nil {
			return err
		}
		d.Video, d.VideoCodec = src, rtp.CodecH264
	}
	return nil
}

func (d *Demuxer) openAudio(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ogg" && ext != ".opus" {
		return fmt.Errorf("%w: audio file %s", ErrUnsupportedFormat, path)
	}
	f, err := d.open(path)
	if err != nil {
		return err
	}
	src, err := OpenOgg(f)
	if err != nil {
		return err
	}
	d.Audio = src
	return nil
}

// Close releases every file opened by the demuxer.
func (d *Demuxer) Close() error {
	var errs []error
	for _, f := range d.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.files = nil
	return errors.Join(errs...)
}
