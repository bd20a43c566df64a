package rtp

import (
	"fmt"
	"time"

	"github.com/opd-ai/voicestream/metrics"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// rtcpHeaderSize is the clear part of a sender report: the common RTCP
// header plus the sender SSRC.
const rtcpHeaderSize = 8

// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const ntpEpochOffset = 2208988800

// ntpTime converts t to the 64-bit NTP timestamp format.
func ntpTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}

// buildSenderReport returns the encrypted RTCP sender report packet for the
// current counters. The 8-byte header stays in clear and authenticates the
// sealed 20-byte sender info.
func (b *base) buildSenderReport(now time.Time) ([]byte, error) {
	sr := rtcp.SenderReport{
		SSRC:        b.ssrc,
		NTPTime:     ntpTime(now),
		RTPTime:     b.timestamp,
		PacketCount: b.totalPackets,
		OctetCount:  b.totalOctets,
	}
	raw, err := sr.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sender report: %w", err)
	}
	header := raw[:rtcpHeaderSize]
	return b.seal(header, raw[rtcpHeaderSize:])
}

func (b *base) sendSenderReport(now time.Time) error {
	packet, err := b.buildSenderReport(now)
	if err != nil {
		return err
	}
	if err := b.transport.SendPacket(packet); err != nil {
		b.opts.Metrics.SendError(metrics.KindRTCP)
		return fmt.Errorf("failed to send sender report: %w", err)
	}
	b.opts.Metrics.PacketSent(metrics.KindRTCP, len(packet))
	b.stats.SenderReports++

	b.log.WithFields(logrus.Fields{
		"function":     "sendSenderReport",
		"packet_count": b.totalPackets,
		"octet_count":  b.totalOctets,
		"rtp_time":     b.timestamp,
	}).Debug("Sender report sent")
	return nil
}
