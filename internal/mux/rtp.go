package mux

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/PZwoodcat/Oleppy-Free/internal/h264"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

// RTP constants for the H.264 payload format.
const (
	rtpClockRate   = 90000
	rtpPayloadType = 96
	rtpMTU         = 1200
	senderInterval = time.Second
)

// ntpEpochOffset is the number of seconds between 1900 and 1970.
const ntpEpochOffset = 2_208_988_800

// RTPMuxer packetizes access units as RTP (RFC 6184) and sends RTCP sender
// reports about once a second. SPS and PPS are sent before every IDR so a
// receiver joining late can start decoding at the next keyframe.
type RTPMuxer struct {
	rtp     io.Writer
	rtcp    io.Writer
	closers []io.Closer
	stream  Stream
	logger  *slog.Logger
	tb      timeBase

	packetizer rtp.Packetizer
	ssrc       uint32
	tsOffset   uint32
	sps, pps   []byte

	packets  uint32
	octets   uint32
	lastTS   uint32
	lastSR   time.Time
	now      func() time.Time
	loggedPS bool
}

// NewRTPMuxer sends RTP datagrams to rtpOut and RTCP to rtcpOut, which may be
// nil. Each Write call must send one datagram.
func NewRTPMuxer(rtpOut, rtcpOut io.Writer, stream Stream, logger *slog.Logger) *RTPMuxer {
	ssrc := rand.Uint32()
	return &RTPMuxer{
		rtp:        rtpOut,
		rtcp:       rtcpOut,
		stream:     stream,
		logger:     logger,
		tb:         timeBase{fps: stream.FPS},
		packetizer: rtp.NewPacketizer(rtpMTU, rtpPayloadType, ssrc, &codecs.H264Payloader{}, rtp.NewRandomSequencer(), rtpClockRate),
		ssrc:       ssrc,
		tsOffset:   rand.Uint32(),
		now:        time.Now,
	}
}

// DialRTP connects to rtp://host:port. RTCP goes to port+1 unless the target
// has an rtcpport query parameter.
func DialRTP(target string, stream Stream, logger *slog.Logger) (*RTPMuxer, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse rtp target: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port >= 65535 {
		return nil, fmt.Errorf("rtp target %q needs a port", target)
	}
	rtcpPort := port + 1
	if v := u.Query().Get("rtcpport"); v != "" {
		if rtcpPort, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid rtcpport %q", v)
		}
	}

	rtpConn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial rtp: %w", err)
	}
	rtcpConn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), strconv.Itoa(rtcpPort)))
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("dial rtcp: %w", err)
	}

	m := NewRTPMuxer(rtpConn, rtcpConn, stream, logger)
	m.closers = []io.Closer{rtpConn, rtcpConn}
	logger.Info("RTP output ready", "target", target, "ssrc", m.ssrc)
	return m, nil
}

// WritePacket implements Muxer.
func (m *RTPMuxer) WritePacket(p Packet) error {
	au := h264.StripNonVideo(p.AU)
	if sps, pps := h264.ParameterSets(au); sps != nil && pps != nil {
		m.sps, m.pps = bytes.Clone(sps), bytes.Clone(pps)
		if !m.loggedPS {
			m.logger.Info("RTP session description", "sdp", m.SDP())
			m.loggedPS = true
		}
	} else if p.Keyframe && m.sps != nil {
		au = append([][]byte{m.sps, m.pps}, au...)
	}

	payload, err := h264.MarshalAnnexB(au)
	if err != nil {
		return fmt.Errorf("marshal access unit %d: %w", p.Index, err)
	}

	idx := m.tb.index(p.PTS)
	ts := m.tsOffset + uint32(idx*rtpClockRate/int64(m.stream.FPS))
	for _, pkt := range m.packetizer.Packetize(payload, 0) {
		pkt.Timestamp = ts
		b, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rtp packet: %w", err)
		}
		if _, err := m.rtp.Write(b); err != nil {
			return fmt.Errorf("send rtp packet: %w", err)
		}
		m.packets++
		m.octets += uint32(len(pkt.Payload))
	}
	m.lastTS = ts
	metrics.AddMuxed("rtp", len(payload))

	if now := m.now(); now.Sub(m.lastSR) >= senderInterval {
		m.lastSR = now
		return m.sendSenderReport(now)
	}
	return nil
}

func (m *RTPMuxer) sendSenderReport(now time.Time) error {
	if m.rtcp == nil {
		return nil
	}
	sr := rtcp.SenderReport{
		SSRC:        m.ssrc,
		NTPTime:     ntpTime(now),
		RTPTime:     m.lastTS,
		PacketCount: m.packets,
		OctetCount:  m.octets,
	}
	b, err := sr.Marshal()
	if err != nil {
		return fmt.Errorf("marshal sender report: %w", err)
	}
	if _, err := m.rtcp.Write(b); err != nil {
		// RTCP loss does not break the media stream.
		m.logger.Debug("Sender report not sent", "error", err)
	}
	return nil
}

// ntpTime converts t to the 64-bit NTP timestamp format.
func ntpTime(t time.Time) uint64 {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) << 32 / 1_000_000_000
	return secs<<32 | frac
}

// FmtpLine returns the a=fmtp parameters for the current parameter sets.
func (m *RTPMuxer) FmtpLine() string {
	line := "packetization-mode=1"
	if len(m.sps) >= 4 {
		line += fmt.Sprintf(";profile-level-id=%02x%02x%02x", m.sps[1], m.sps[2], m.sps[3])
	}
	if m.sps != nil && m.pps != nil {
		line += ";sprop-parameter-sets=" + base64.StdEncoding.EncodeToString(m.sps) +
			"," + base64.StdEncoding.EncodeToString(m.pps)
	}
	return line
}

// SDP returns a session description a receiver can open.
func (m *RTPMuxer) SDP() string {
	return fmt.Sprintf("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=oleppy\r\nc=IN IP4 0.0.0.0\r\nt=0 0\r\n"+
		"m=video 0 RTP/AVP %d\r\na=rtpmap:%d H264/%d\r\na=fmtp:%d %s\r\na=framerate:%d\r\n",
		rtpPayloadType, rtpPayloadType, rtpClockRate, rtpPayloadType, m.FmtpLine(), m.stream.FPS)
}

// Close implements Muxer. A final sender report is sent first.
func (m *RTPMuxer) Close() error {
	var errs []error
	if m.packets > 0 {
		errs = append(errs, m.sendSenderReport(m.now()))
	}
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
