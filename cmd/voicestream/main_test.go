package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/voicestream/av/media"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func validConfig() *CLIConfig {
	return &CLIConfig{
		address:          "203.0.113.5",
		port:             50004,
		ssrc:             1234,
		mode:             "aead_aes256_gcm",
		key:              validKey,
		handshakeTimeout: 10 * time.Second,
		mtu:              1200,
		audioPath:        "clip.ogg",
		frameRate:        "30/1",
		syncTolerance:    5 * time.Millisecond,
		silence:          3 * time.Second,
	}
}

func TestValidateCLIConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*CLIConfig)
		errContains string
	}{
		{name: "valid config", mutate: func(*CLIConfig) {}},
		{name: "record only", mutate: func(c *CLIConfig) { c.audioPath = ""; c.recordUsers = "111" }},
		{name: "rtpsize mode name", mutate: func(c *CLIConfig) { c.mode = "aead_aes256_gcm_rtpsize" }},
		{name: "empty address", mutate: func(c *CLIConfig) { c.address = "" }, errContains: "address cannot be empty"},
		{name: "port zero", mutate: func(c *CLIConfig) { c.port = 0 }, errContains: "invalid port"},
		{name: "port over 65535", mutate: func(c *CLIConfig) { c.port = 70000 }, errContains: "invalid port"},
		{name: "ssrc zero", mutate: func(c *CLIConfig) { c.ssrc = 0 }, errContains: "invalid ssrc"},
		{name: "unknown mode", mutate: func(c *CLIConfig) { c.mode = "plain" }, errContains: "unsupported"},
		{name: "short key", mutate: func(c *CLIConfig) { c.key = "0011" }, errContains: "want 32"},
		{name: "non hex key", mutate: func(c *CLIConfig) { c.key = "zz" }, errContains: "invalid key"},
		{name: "nothing to do", mutate: func(c *CLIConfig) { c.audioPath = "" }, errContains: "nothing to do"},
		{name: "bad frame rate", mutate: func(c *CLIConfig) { c.frameRate = "0/1" }, errContains: "invalid frame rate"},
		{name: "mtu too small", mutate: func(c *CLIConfig) { c.mtu = 10 }, errContains: "invalid MTU"},
		{name: "zero handshake", mutate: func(c *CLIConfig) { c.handshakeTimeout = 0 }, errContains: "handshake timeout"},
		{name: "negative tolerance", mutate: func(c *CLIConfig) { c.syncTolerance = -time.Millisecond }, errContains: "sync tolerance"},
		{name: "zero silence when recording", mutate: func(c *CLIConfig) { c.recordUsers = "1"; c.silence = 0 }, errContains: "silence timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)
			err := validateCLIConfig(config)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestParseCLIFlags(t *testing.T) {
	fs := flag.NewFlagSet("voicestream", flag.ContinueOnError)
	config, err := parseCLIFlags(fs, []string{
		"-address", "203.0.113.5", "-port", "50004", "-ssrc", "99",
		"-key", validKey, "-video", "clip.ivf", "-no-sleep", "-sync-tolerance", "10ms",
		"-record", "1,2", "-pcm", "-log-level", "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.5", config.address)
	assert.Equal(t, uint(50004), config.port)
	assert.Equal(t, uint(99), config.ssrc)
	assert.Equal(t, "clip.ivf", config.videoPath)
	assert.True(t, config.noSleep)
	assert.True(t, config.recordPCM)
	assert.True(t, config.senderReports)
	assert.Equal(t, 10*time.Millisecond, config.syncTolerance)
	assert.Equal(t, "1,2", config.recordUsers)
	assert.Equal(t, 3*time.Second, config.silence)
	assert.NoError(t, validateCLIConfig(config))
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in      string
		want    media.Rational
		wantErr bool
	}{
		{"30", media.Rational{Num: 30, Den: 1}, false},
		{"30/1", media.Rational{Num: 30, Den: 1}, false},
		{"30000/1001", media.Rational{Num: 30000, Den: 1001}, false},
		{"abc", media.Rational{}, true},
		{"30/x", media.Rational{}, true},
		{"30/0", media.Rational{}, true},
		{"-1/1", media.Rational{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFrameRate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSession(t *testing.T) {
	config := validConfig()
	config.mode = "xsalsa20_poly1305_lite"
	config.noSleep = true
	config.aggregate = true

	params, opts := buildSession(config, nil)
	assert.Equal(t, uint32(1234), params.SSRC)
	assert.Equal(t, 50004, params.Port)
	assert.Equal(t, crypto.ModeXSalsa20Poly1305Lite, params.Mode)
	assert.Len(t, params.SecretKey, 32)
	assert.NoError(t, params.Validate())

	assert.True(t, opts.Pacing.NoSleep)
	assert.True(t, opts.Transport.Aggregate)
	assert.Equal(t, 1200, opts.Transport.MTU)
}

func TestSplitUsers(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, splitUsers(" 1, 2,,3 "))
	assert.Nil(t, splitUsers(""))
}

func TestRecordingPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "record_42.ogg"), recordingPath("out", "42", false))
	assert.Equal(t, filepath.Join("out", "record_42.pcm"), recordingPath("out", "42", true))
}

func TestOggSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.ogg")
	sink, err := newOggSink(path)
	require.NoError(t, err)

	frames := [][]byte{{0xfc, 0x01}, {0xfc, 0x02}, {0xfc, 0x03}}
	for i, f := range frames {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 120, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: f,
		}
		require.NoError(t, sink.WritePacket(pkt))
	}
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	src, err := media.OpenOgg(f)
	require.NoError(t, err)

	var got [][]byte
	for {
		unit, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, unit.Data)
	}
	assert.Equal(t, frames, got)
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	_, err := setupLogging("loud", "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "voicestream.log")
	closeLog, err := setupLogging("WARN", path)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Info("hidden")
	logrus.Warn("visible")
	closeLog()
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "visible"))
	assert.False(t, strings.Contains(string(data), "hidden"))
}
