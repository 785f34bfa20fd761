package mux

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
)

func mustDecode(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

var (
	testSPS = mustDecode("Z0IAKeKQFAe2AtwEBAaQeJEV")
	testPPS = mustDecode("aM48gA==")
	testAUD = []byte{0x09, 0xF0}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	testP   = []byte{0x41, 0x9A, 0x02, 0x03}
)

var testStream = Stream{Width: 64, Height: 64, FPS: 30}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memFile struct {
	bytes.Buffer
	closed int
}

func (f *memFile) Close() error {
	f.closed++
	return nil
}

func keyPacket(i int64) Packet {
	return Packet{AU: [][]byte{testAUD, testSPS, testPPS, testIDR}, PTS: pacer.FrameTime(i, 30), Keyframe: true, Index: i}
}

func deltaPacket(i int64) Packet {
	return Packet{AU: [][]byte{testAUD, testP}, PTS: pacer.FrameTime(i, 30), Index: i}
}

func TestTimeBaseStrictlyIncreasing(t *testing.T) {
	tb := timeBase{fps: 30}
	pts := []int64{0, 333333, 340000, 340000, 1000000, 900000}
	want := []int64{0, 1, 2, 3, 4, 5}
	for i, p := range pts {
		if got := tb.index(p); got != want[i] {
			t.Errorf("index(%d) = %d, want %d", p, got, want[i])
		}
	}
}

func TestAnnexBMuxer(t *testing.T) {
	f := &memFile{}
	m := NewAnnexBMuxer(f)
	if err := m.WritePacket(keyPacket(0)); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(deltaPacket(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if f.closed != 1 {
		t.Errorf("closed %d times", f.closed)
	}
	if got := bytes.Count(f.Bytes(), []byte{0, 0, 0, 1}); got != 6 {
		t.Errorf("found %d start codes, want 6", got)
	}
}

func TestFMP4Muxer(t *testing.T) {
	f := &memFile{}
	m := NewFMP4Muxer(f, testStream, discardLogger())

	// Packets before the first keyframe cannot be decoded and are dropped.
	if err := m.WritePacket(deltaPacket(0)); err != nil {
		t.Fatal(err)
	}
	if f.Len() != 0 {
		t.Fatal("wrote output before the first keyframe")
	}

	for i := int64(1); i <= 3; i++ {
		p := deltaPacket(i)
		if i == 1 {
			p = keyPacket(i)
		}
		if err := m.WritePacket(p); err != nil {
			t.Fatal(err)
		}
	}
	// The last sample is held until Close.
	if got := bytes.Count(f.Bytes(), []byte("moof")); got != 2 {
		t.Errorf("%d fragments before Close, want 2", got)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	out := f.Bytes()
	if string(out[4:8]) != "ftyp" {
		t.Errorf("output starts with %q", out[4:8])
	}
	if got := bytes.Count(out, []byte("moof")); got != 3 {
		t.Errorf("%d fragments, want 3", got)
	}
	if !bytes.Contains(out, []byte("avcC")) {
		t.Error("init segment has no avcC box")
	}
}

func TestFMP4KeyframeNeedsParameterSets(t *testing.T) {
	m := NewFMP4Muxer(&memFile{}, testStream, discardLogger())
	err := m.WritePacket(Packet{AU: [][]byte{testIDR}, Keyframe: true})
	if err == nil {
		t.Fatal("expected error for keyframe without SPS/PPS")
	}
}

func TestMatroskaMuxer(t *testing.T) {
	f := &memFile{}
	m := NewMatroskaMuxer(f, testStream, discardLogger())

	for i := range int64(5) {
		p := deltaPacket(i)
		if i == 1 {
			p = keyPacket(i)
		}
		if err := m.WritePacket(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	out := f.Bytes()
	if !bytes.HasPrefix(out, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		t.Errorf("missing EBML header: %x", out[:min(len(out), 4)])
	}
	if !bytes.Contains(out, []byte(codecIDAVC)) {
		t.Error("track has no AVC codec id")
	}
	if !bytes.Contains(out, []byte("matroska")) {
		t.Error("doc type is not matroska")
	}
	if f.closed != 1 {
		t.Errorf("closed %d times", f.closed)
	}
}

func TestMatroskaCloseWithoutPackets(t *testing.T) {
	f := &memFile{}
	m := NewMatroskaMuxer(f, testStream, discardLogger())
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if f.closed != 1 || f.Len() != 0 {
		t.Errorf("closed=%d len=%d", f.closed, f.Len())
	}
}

// datagrams records each Write as one packet.
type datagrams struct {
	packets [][]byte
}

func (d *datagrams) Write(b []byte) (int, error) {
	d.packets = append(d.packets, bytes.Clone(b))
	return len(b), nil
}

func TestRTPMuxer(t *testing.T) {
	rtpOut, rtcpOut := &datagrams{}, &datagrams{}
	m := NewRTPMuxer(rtpOut, rtcpOut, testStream, discardLogger())
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	if err := m.WritePacket(keyPacket(0)); err != nil {
		t.Fatal(err)
	}
	first := len(rtpOut.packets)
	if err := m.WritePacket(deltaPacket(1)); err != nil {
		t.Fatal(err)
	}
	second := len(rtpOut.packets)

	// A keyframe without in-band parameter sets gets them injected.
	now = now.Add(2 * time.Second)
	if err := m.WritePacket(Packet{AU: [][]byte{testIDR}, PTS: pacer.FrameTime(2, 30), Keyframe: true, Index: 2}); err != nil {
		t.Fatal(err)
	}

	var pkts []rtp.Packet
	for _, b := range rtpOut.packets {
		var p rtp.Packet
		if err := p.Unmarshal(b); err != nil {
			t.Fatal(err)
		}
		if p.SSRC != m.ssrc || p.PayloadType != rtpPayloadType {
			t.Fatalf("header %+v", p.Header)
		}
		pkts = append(pkts, p)
	}

	if d := pkts[first].Timestamp - pkts[0].Timestamp; d != 3000 {
		t.Errorf("timestamp delta %d, want 3000", d)
	}
	if !pkts[second-1].Marker {
		t.Error("last packet of an access unit has no marker")
	}
	if nt := pkts[second].Payload[0] & 0x1F; nt != 24 && nt != 7 {
		t.Errorf("keyframe starts with NAL type %d, want parameter sets", nt)
	}

	if len(rtcpOut.packets) != 2 {
		t.Fatalf("%d sender reports, want 2", len(rtcpOut.packets))
	}
	parsed, err := rtcp.Unmarshal(rtcpOut.packets[1])
	if err != nil {
		t.Fatal(err)
	}
	sr, ok := parsed[0].(*rtcp.SenderReport)
	if !ok {
		t.Fatalf("got %T", parsed[0])
	}
	if sr.SSRC != m.ssrc || sr.PacketCount != uint32(len(pkts)) || sr.RTPTime != pkts[len(pkts)-1].Timestamp {
		t.Errorf("sender report %+v", sr)
	}

	if !strings.Contains(m.SDP(), "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA==") {
		t.Errorf("SDP missing parameter sets:\n%s", m.SDP())
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNTPTime(t *testing.T) {
	ts := ntpTime(time.Unix(0, 500_000_000))
	if secs := ts >> 32; secs != ntpEpochOffset {
		t.Errorf("seconds %d", secs)
	}
	if frac := ts & 0xFFFFFFFF; frac != 1<<31 {
		t.Errorf("fraction %d, want %d", frac, uint64(1)<<31)
	}
}

type recordingMuxer struct {
	packets []Packet
	closed  bool
	err     error
}

func (r *recordingMuxer) WritePacket(p Packet) error {
	r.packets = append(r.packets, p)
	return r.err
}

func (r *recordingMuxer) Close() error {
	r.closed = true
	return nil
}

func TestTee(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingMuxer{err: boom}, &recordingMuxer{}
	tee := NewTee(a, nil, b)

	if err := tee.WritePacket(keyPacket(0)); !errors.Is(err, boom) {
		t.Errorf("WritePacket = %v", err)
	}
	if len(b.packets) != 1 {
		t.Error("second muxer skipped after first failed")
	}
	if err := tee.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("not every muxer closed")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		target string
		want   string
	}{
		{"out.h264", "*mux.AnnexBMuxer"},
		{"out.mkv", "*mux.MatroskaMuxer"},
		{"out.MP4", "*mux.FMP4Muxer"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			path := filepath.Join(dir, tt.target)
			m, err := Open(path, testStream, discardLogger())
			if err != nil {
				t.Fatal(err)
			}
			defer m.Close()
			if got := fmt.Sprintf("%T", m); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if _, err := os.Stat(path); err != nil {
				t.Error(err)
			}
		})
	}

	_, err := Open(filepath.Join(dir, "out.avi"), testStream, discardLogger())
	if faults.KindOf(err) != faults.KindFatalConfig {
		t.Errorf("unsupported container: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.avi")); !os.IsNotExist(err) {
		t.Error("unsupported container left a file")
	}
	_, err = Open(filepath.Join(dir, "x.mp4"), Stream{}, discardLogger())
	if faults.KindOf(err) != faults.KindFatalConfig {
		t.Errorf("invalid stream: %v", err)
	}
	if _, err := Open("rtp://127.0.0.1", testStream, discardLogger()); err == nil {
		t.Error("rtp target without port accepted")
	}
}

func TestDialRTP(t *testing.T) {
	m, err := DialRTP("rtp://127.0.0.1:50004?rtcpport=50010", testStream, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.closers) != 2 {
		t.Errorf("closers = %d", len(m.closers))
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
