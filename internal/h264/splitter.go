package h264

import (
	"bytes"
	"errors"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var startCode = []byte{0, 0, 1}

const readChunk = 64 * 1024

// Splitter reads an Annex-B byte stream and returns one access unit at a time.
//
// A new access unit begins at an access unit delimiter, SPS, PPS or SEI that
// follows slice data, or at a slice whose first_mb_in_slice is zero. An access
// unit is returned once the first NAL unit of the next one has been read, or
// at the end of the stream.
type Splitter struct {
	r        io.Reader
	buf      []byte
	scanFrom int
	chunk    []byte
	eof      bool

	au     [][]byte
	hasVCL bool
}

// NewSplitter returns a splitter reading from r.
func NewSplitter(r io.Reader) *Splitter {
	return &Splitter{r: r, chunk: make([]byte, readChunk)}
}

// Next returns the next access unit as NAL units without start codes. It
// returns io.EOF after the last access unit.
func (s *Splitter) Next() ([][]byte, error) {
	for {
		nalu, err := s.nextNALU()
		if err != nil {
			if errors.Is(err, io.EOF) && len(s.au) > 0 {
				au := s.au
				s.au, s.hasVCL = nil, false
				return au, nil
			}
			return nil, err
		}
		if len(nalu) == 0 {
			continue
		}

		if s.hasVCL && startsAccessUnit(nalu) {
			au := s.au
			s.au = [][]byte{nalu}
			s.hasVCL = isVCL(nalu)
			return au, nil
		}
		s.au = append(s.au, nalu)
		if isVCL(nalu) {
			s.hasVCL = true
		}
	}
}

func startsAccessUnit(nalu []byte) bool {
	switch NALUType(nalu) {
	case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeSEI:
		return true
	case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
		// first_mb_in_slice is ue(v); zero is coded as a single 1 bit.
		return len(nalu) > 1 && nalu[1]&0x80 != 0
	default:
		return false
	}
}

// nextNALU returns the bytes up to the next start code. Bytes before the first
// start code come back as an empty NAL unit.
func (s *Splitter) nextNALU() ([]byte, error) {
	for {
		if i := bytes.Index(s.buf[s.scanFrom:], startCode); i >= 0 {
			end := s.scanFrom + i
			nalu := bytes.Clone(bytes.TrimRight(s.buf[:end], "\x00"))
			s.buf = s.buf[end+len(startCode):]
			s.scanFrom = 0
			return nalu, nil
		}
		s.scanFrom = max(len(s.buf)-len(startCode)+1, 0)

		if s.eof {
			if len(s.buf) == 0 {
				return nil, io.EOF
			}
			nalu := bytes.Clone(bytes.TrimRight(s.buf, "\x00"))
			s.buf, s.scanFrom = nil, 0
			return nalu, nil
		}

		n, err := s.r.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			s.eof = true
		}
	}
}
