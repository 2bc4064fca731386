// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2024, Emir Aganovic

// Package media implements the RTP/RTCP session core: wire codec (C1),
// participant database (C2), jitter buffer (C3), RTP sender (C4), RTP
// listener (C5) and RTCP handler (C6).
package media

import (
	"fmt"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// RTPVersion is the only RTP/RTCP version this codec accepts, per RFC 3550.
const RTPVersion = 2

// EncodeRTP serializes header and payload into a network-byte-order RTP
// packet. Fails with ErrOversizedPayload if the result would not fit in mtu.
func EncodeRTP(header rtp.Header, payload []byte, mtu int) ([]byte, error) {
	header.Version = RTPVersion
	pkt := rtp.Packet{Header: header, Payload: payload}

	if pkt.MarshalSize() > mtu {
		return nil, fmt.Errorf("%w: %d > mtu %d", ErrOversizedPayload, pkt.MarshalSize(), mtu)
	}

	return pkt.Marshal()
}

// DecodeRTP parses an RTP packet. It returns ErrTruncatedPacket when fewer
// than 12 bytes are present or the declared CSRC/extension span exceeds the
// input, and ErrUnsupportedVersion when the version field is not 2.
func DecodeRTP(b []byte) (rtp.Header, []byte, error) {
	if len(b) < 12 {
		return rtp.Header{}, nil, fmt.Errorf("%w: %d bytes", ErrTruncatedPacket, len(b))
	}

	pkt := rtp.Packet{}
	if err := pkt.Unmarshal(b); err != nil {
		return rtp.Header{}, nil, fmt.Errorf("%w: %v", ErrTruncatedPacket, err)
	}

	if pkt.Version != RTPVersion {
		return rtp.Header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, pkt.Version)
	}

	return pkt.Header, pkt.Payload, nil
}

// IsRTCP reports whether b looks like an RTCP packet: at least 4 bytes,
// version bits 2, and a packet-type byte in {200..204}. Used to demultiplex
// RTP and RTCP when they share a port.
func IsRTCP(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	if b[0]>>6 != RTPVersion {
		return false
	}
	pt := b[1]
	return pt >= 200 && pt <= 204
}

// BuildCompoundRTCP concatenates RTCP sub-packets into one compound packet.
// The first part MUST be a SenderReport or ReceiverReport per RFC 3550
// section 6.1; each sub-packet is length-prefixed by pion/rtcp's Marshal.
func BuildCompoundRTCP(parts []rtcp.Packet) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("media: empty compound rtcp")
	}
	switch parts[0].(type) {
	case *rtcp.SenderReport, *rtcp.ReceiverReport:
	default:
		return nil, fmt.Errorf("media: first rtcp sub-packet must be SR or RR, got %T", parts[0])
	}

	return rtcp.Marshal(parts)
}

// ParseCompoundRTCP walks a compound RTCP packet by (length+1)*4 and returns
// its sub-packets in order. Fails with ErrMalformedLength if a declared
// length would overrun the buffer or leave a sub-packet shorter than its
// minimum header size.
func ParseCompoundRTCP(b []byte) ([]rtcp.Packet, error) {
	var out []rtcp.Packet

	for len(b) != 0 {
		var h rtcp.Header
		if err := h.Unmarshal(b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLength, err)
		}

		pktLen := (int(h.Length) + 1) * 4
		if pktLen < 4 || pktLen > len(b) {
			return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrMalformedLength, pktLen, len(b))
		}

		sub := rtcpTypedPacket(h.Type)
		if err := sub.Unmarshal(b[:pktLen]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLength, err)
		}

		out = append(out, sub)
		b = b[pktLen:]
	}

	return out, nil
}

// rtcpTypedPacket returns a zero-valued packet of the concrete type named by
// htype, or a RawPacket for unrecognized types (APP, and anything else
// outside SR/RR/SDES/BYE). Unknown types are not a parse failure; the
// caller logs and skips them per ErrUnknownPacketType's handling policy.
func rtcpTypedPacket(htype rtcp.PacketType) rtcp.Packet {
	switch htype {
	case rtcp.TypeSenderReport:
		return new(rtcp.SenderReport)

	case rtcp.TypeReceiverReport:
		return new(rtcp.ReceiverReport)

	case rtcp.TypeSourceDescription:
		return new(rtcp.SourceDescription)

	case rtcp.TypeGoodbye:
		return new(rtcp.Goodbye)

	default:
		return new(rtcp.RawPacket)
	}
}

// BuildSDES builds a single-chunk SourceDescription carrying CNAME, TOOL
// and any optional items supplied, per §4.6's compound construction rule
// that SDES always includes CNAME and TOOL.
func BuildSDES(ssrc uint32, cname, tool string, optional map[rtcp.SDESType]string) *rtcp.SourceDescription {
	items := make([]rtcp.SourceDescriptionItem, 0, 2+len(optional))
	items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESCNAME, Text: cname})
	for t, v := range optional {
		items = append(items, rtcp.SourceDescriptionItem{Type: t, Text: v})
	}
	items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESTool, Text: tool})

	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{Source: ssrc, Items: items},
		},
	}
}

// BuildBye builds a session-terminating BYE for the given sources with an
// optional reason string.
func BuildBye(reason string, sources ...uint32) *rtcp.Goodbye {
	return &rtcp.Goodbye{
		Sources: sources,
		Reason:  reason,
	}
}
