// Package main provides the command-line interface for streaming media files
// into a voice session and recording its participants.
//
// The tool joins one media session given the server address, SSRC and
// session key obtained from the voice gateway, then plays IVF, Ogg or raw
// H.264 files and records subscribed users to Ogg or raw PCM.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/voicestream"
	"github.com/opd-ai/voicestream/av/media"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/opd-ai/voicestream/limits"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/opd-ai/voicestream/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	address          string
	port             uint
	ssrc             uint
	mode             string
	key              string
	handshakeTimeout time.Duration
	mtu              int
	videoPath        string
	audioPath        string
	frameRate        string
	noSleep          bool
	syncTolerance    time.Duration
	senderReports    bool
	aggregate        bool
	recordUsers      string
	recordDir        string
	recordPCM        bool
	silence          time.Duration
	signalingPath    string
	metricsAddr      string
	logLevel         string
	logFile          string
	help             bool
}

// parseCLIFlags parses command-line flags into a configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{}

	// Session parameters
	fs.StringVar(&config.address, "address", "", "Media server address")
	fs.UintVar(&config.port, "port", 0, "Media server UDP port")
	fs.UintVar(&config.ssrc, "ssrc", 0, "Audio SSRC assigned by the voice gateway")
	fs.StringVar(&config.mode, "mode", "aead_aes256_gcm", "Encryption mode (aead_aes256_gcm, xsalsa20_poly1305_lite)")
	fs.StringVar(&config.key, "key", "", "Hex-encoded 32-byte session key")
	fs.DurationVar(&config.handshakeTimeout, "handshake-timeout", 10*time.Second, "IP discovery timeout")
	fs.IntVar(&config.mtu, "mtu", limits.DefaultMTU, "Largest payload chunk per packet")

	// Playback
	fs.StringVar(&config.videoPath, "video", "", "Video file (.ivf, .h264)")
	fs.StringVar(&config.audioPath, "audio", "", "Audio file (.ogg, .opus)")
	fs.StringVar(&config.frameRate, "framerate", "30/1", "Frame rate for raw H.264 input")
	fs.BoolVar(&config.noSleep, "no-sleep", false, "Send frames as fast as possible")
	fs.DurationVar(&config.syncTolerance, "sync-tolerance", 5*time.Millisecond, "Allowed lead of one stream over the other")
	fs.BoolVar(&config.senderReports, "sender-reports", true, "Send periodic RTCP sender reports")
	fs.BoolVar(&config.aggregate, "aggregate", false, "Aggregate small H.264/H.265 NAL units")

	// Recording
	fs.StringVar(&config.recordUsers, "record", "", "Comma-separated user ids to record")
	fs.StringVar(&config.recordDir, "record-dir", ".", "Directory for recordings")
	fs.BoolVar(&config.recordPCM, "pcm", false, "Record decoded 48 kHz stereo s16le PCM instead of Ogg")
	fs.DurationVar(&config.silence, "silence", 3*time.Second, "End a recording after this much silence")
	fs.StringVar(&config.signalingPath, "signaling", "", "File of newline-delimited gateway messages, - for stdin")

	// Observability
	fs.StringVar(&config.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&config.logLevel, "log-level", "INFO", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.logFile, "log-file", "", "Log file path (default: stderr)")

	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("Voice Media Streamer")
	fmt.Println("====================")
	fmt.Println()
	fmt.Println("Streams video and Opus audio into a voice session and records")
	fmt.Println("participants after joining with gateway-issued parameters.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Stream a VP8 clip with its soundtrack\n")
	fmt.Printf("  %s -address 203.0.113.5 -port 50004 -ssrc 1234 -key $KEY -video clip.ivf -audio clip.ogg\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Record two users from gateway events on stdin\n")
	fmt.Printf("  %s -address 203.0.113.5 -port 50004 -ssrc 1234 -key $KEY -record 111,222 -signaling -\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.address == "" {
		return fmt.Errorf("media server address cannot be empty")
	}
	if config.port == 0 || config.port > 65535 {
		return fmt.Errorf("invalid port: must be between 1 and 65535")
	}
	if config.ssrc == 0 || config.ssrc > 0xffffffff {
		return fmt.Errorf("invalid ssrc: must be a non-zero 32-bit value")
	}
	if _, err := crypto.ParseEncryptionMode(config.mode); err != nil {
		return err
	}
	if _, err := decodeKey(config.key); err != nil {
		return err
	}
	if config.videoPath == "" && config.audioPath == "" && config.recordUsers == "" {
		return fmt.Errorf("nothing to do: give -video, -audio or -record")
	}
	if _, err := parseFrameRate(config.frameRate); err != nil {
		return err
	}
	if err := limits.ValidateMTU(config.mtu); err != nil {
		return err
	}
	if config.handshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if config.syncTolerance < 0 {
		return fmt.Errorf("sync tolerance cannot be negative")
	}
	if config.recordUsers != "" && config.silence <= 0 {
		return fmt.Errorf("silence timeout must be positive")
	}
	return nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key: got %d bytes, want 32", len(key))
	}
	return key, nil
}

// parseFrameRate accepts "30", "30/1" or "30000/1001".
func parseFrameRate(s string) (media.Rational, error) {
	num, den, found := strings.Cut(s, "/")
	if !found {
		den = "1"
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return media.Rational{}, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return media.Rational{}, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	r := media.Rational{Num: n, Den: d}
	if !r.Valid() {
		return media.Rational{}, fmt.Errorf("invalid frame rate %q: %w", s, media.ErrInvalidTimeBase)
	}
	return r, nil
}

// buildSession converts the CLI configuration into join parameters.
func buildSession(config *CLIConfig, m *metrics.Metrics) (transport.SessionParams, *voicestream.Options) {
	mode, _ := crypto.ParseEncryptionMode(config.mode)
	key, _ := decodeKey(config.key)

	params := transport.SessionParams{
		SSRC:      uint32(config.ssrc),
		Address:   config.address,
		Port:      int(config.port),
		Mode:      mode,
		SecretKey: key,
	}

	opts := voicestream.NewOptions()
	opts.Transport.HandshakeTimeout = config.handshakeTimeout
	opts.Transport.MTU = config.mtu
	opts.Transport.SenderReports = config.senderReports
	opts.Transport.Aggregate = config.aggregate
	opts.Pacing.NoSleep = config.noSleep
	opts.Pacing.SyncTolerance = config.syncTolerance
	opts.Metrics = m
	return params, opts
}

// setupSignalHandling cancels ctx on interrupt.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Received signal, shutting down")
		cancel()
	}()
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"address":  addr,
				"error":    err.Error(),
			}).Error("Metrics server stopped")
		}
	}()
}

func run(ctx context.Context, config *CLIConfig) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if config.metricsAddr != "" {
		serveMetrics(config.metricsAddr, reg)
	}

	params, opts := buildSession(config, m)
	session, err := voicestream.Join(ctx, params, opts)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	defer session.Close()

	var rec *recorder
	if config.recordUsers != "" {
		rec, err = startRecording(session, config)
		if err != nil {
			return err
		}
		defer rec.wait()
		if config.signalingPath != "" {
			go feedSignaling(ctx, session, config.signalingPath)
		}
	}

	if config.videoPath != "" || config.audioPath != "" {
		frameRate, _ := parseFrameRate(config.frameRate)
		demux, err := media.OpenFiles(config.videoPath, config.audioPath, media.DemuxOptions{FrameRate: frameRate})
		if err != nil {
			return err
		}
		defer demux.Close()

		if err := session.PlayDemuxer(ctx, demux); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("play: %w", err)
		}
		audio, video := session.Transport().Stats()
		logrus.WithFields(logrus.Fields{
			"function":      "run",
			"audio_packets": audio.PacketsSent,
			"video_packets": video.PacketsSent,
		}).Info("Playback complete")
	}

	if rec != nil {
		rec.waitOrCancel(ctx)
	}
	return nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	config, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if config.help {
		printUsage(fs)
		os.Exit(0)
	}

	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	closeLog, err := setupLogging(config.logLevel, config.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, config); err != nil {
		logrus.WithError(err).Error("voicestream failed")
		closeLog()
		os.Exit(1)
	}
}
