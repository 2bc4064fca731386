// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "errors"

// Error kinds for the wire codec (C1), jitter buffer (C3) and transport
// boundary. Packet-level parse failures using these are logged and the
// offending datagram is dropped; they never terminate a goroutine.
var (
	// ErrOversizedPayload is returned by EncodeRTP when payload+header would
	// exceed the MTU.
	ErrOversizedPayload = errors.New("media: rtp payload exceeds mtu")

	// ErrTruncatedPacket is returned by DecodeRTP when fewer than 12 bytes
	// are present, or the declared CSRC/extension span exceeds the input.
	ErrTruncatedPacket = errors.New("media: truncated rtp packet")

	// ErrUnsupportedVersion is returned by DecodeRTP when the version field
	// is not 2.
	ErrUnsupportedVersion = errors.New("media: unsupported rtp version")

	// ErrMalformedLength is returned by ParseCompoundRTCP when a declared
	// sub-packet length would overrun the buffer or leave a sub-packet
	// shorter than its minimum size.
	ErrMalformedLength = errors.New("media: malformed rtcp length")

	// ErrUnknownPacketType marks an RTCP sub-packet whose type is not
	// recognized. It is not fatal; the sub-packet is skipped.
	ErrUnknownPacketType = errors.New("media: unknown rtcp packet type")

	// ErrInputOverflow names the jitter buffer condition where the buffer has
	// fallen behind playout or is full. JitterBuffer.Write reports it as
	// StatusInputOverflow and does not return this error.
	ErrInputOverflow = errors.New("media: jitter buffer input overflow")

	// ErrOutputUnderflow names the jitter buffer condition where no packet is
	// available and a concealment packet was synthesized instead.
	// JitterBuffer.Read reports it as StatusOutputUnderflow and does not
	// return this error.
	ErrOutputUnderflow = errors.New("media: jitter buffer output underflow")

	// ErrSocketClosed signals that the owning transport has been closed;
	// the owning goroutine should transition to its shutdown path.
	ErrSocketClosed = errors.New("media: socket closed")

	// ErrSocketTimeout is a loop-continuation signal, not a true error.
	ErrSocketTimeout = errors.New("media: socket receive timeout")
)
