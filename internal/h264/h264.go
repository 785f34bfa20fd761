// Package h264 splits encoder output into access units and converts them
// between the bitstream formats the muxers need.
package h264

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// NALUType returns the type of a NAL unit.
func NALUType(nalu []byte) h264.NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return h264.NALUType(nalu[0] & 0x1F)
}

// isVCL reports whether nalu carries slice data.
func isVCL(nalu []byte) bool {
	t := NALUType(nalu)
	return t >= h264.NALUTypeNonIDR && t <= h264.NALUTypeIDR
}

// IsKeyframe reports whether the access unit contains an IDR slice.
func IsKeyframe(au [][]byte) bool {
	for _, nalu := range au {
		if NALUType(nalu) == h264.NALUTypeIDR {
			return true
		}
	}
	return false
}

// ParameterSets returns the first SPS and PPS found in au.
func ParameterSets(au [][]byte) (sps, pps []byte) {
	for _, nalu := range au {
		switch NALUType(nalu) {
		case h264.NALUTypeSPS:
			if sps == nil {
				sps = nalu
			}
		case h264.NALUTypePPS:
			if pps == nil {
				pps = nalu
			}
		}
	}
	return sps, pps
}

// StripNonVideo removes access unit delimiters and filler data, which carry no
// picture information and which some containers reject.
func StripNonVideo(au [][]byte) [][]byte {
	out := make([][]byte, 0, len(au))
	for _, nalu := range au {
		switch NALUType(nalu) {
		case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeFillerData:
			continue
		}
		out = append(out, nalu)
	}
	return out
}

// UnmarshalAnnexB splits a start-code delimited buffer into NAL units.
func UnmarshalAnnexB(b []byte) ([][]byte, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("unmarshal annex-b: %w", err)
	}
	return au, nil
}

// MarshalAnnexB joins NAL units with start codes.
func MarshalAnnexB(au [][]byte) ([]byte, error) {
	b := h264.AnnexB(au)
	return b.Marshal()
}

// MarshalAVCC joins NAL units with 4-byte big-endian length prefixes.
func MarshalAVCC(au [][]byte) ([]byte, error) {
	b := h264.AVCC(au)
	return b.Marshal()
}

// ErrParameterSets is returned when an avcC record cannot be built.
var ErrParameterSets = errors.New("missing or invalid SPS/PPS")

// DecoderConfig builds an AVCDecoderConfigurationRecord (avcC) with one SPS
// and one PPS and 4-byte NALU lengths.
func DecoderConfig(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 || len(pps) == 0 || len(sps) > 0xFFFF || len(pps) > 0xFFFF {
		return nil, ErrParameterSets
	}
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // reserved + lengthSizeMinusOne = 3
		0xE1,   // reserved + numOfSequenceParameterSets = 1
		byte(len(sps)>>8), byte(len(sps)),
	)
	out = append(out, sps...)
	out = append(out, 1, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out, nil
}
