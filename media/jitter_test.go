// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silenceFrame() []byte {
	return []byte("SILENCE")
}

func hdr(seq uint16, marker bool) rtp.Header {
	return rtp.Header{Version: 2, SequenceNumber: seq, Marker: marker}
}

// S1 — Reorder.
func TestJitterBufferReorder(t *testing.T) {
	jb := NewJitterBuffer(16, 3, DefaultMaxDelay, silenceFrame)

	assert.Equal(t, StatusOk, jb.Write(hdr(101, false), []byte{1}))
	assert.Equal(t, StatusOk, jb.Write(hdr(103, false), []byte{3}))
	assert.Equal(t, StatusOk, jb.Write(hdr(102, false), []byte{2}))
	assert.Equal(t, StatusOk, jb.Write(hdr(104, false), []byte{4}))

	var order []uint16
	for i := 0; i < 4; i++ {
		h, _, status := jb.Read()
		require.Equal(t, StatusOk, status)
		order = append(order, h.SequenceNumber)
	}
	assert.Equal(t, []uint16{101, 102, 103, 104}, order)
}

// S2 — Loss: 201 is never sent; the read for it must land before 202
// arrives, so it surfaces as a concealment underflow rather than being
// silently skipped.
func TestJitterBufferLossConcealment(t *testing.T) {
	var lost int
	jb := NewJitterBuffer(8, 1, DefaultMaxDelay, silenceFrame)
	jb.OnLoss = func(n int) { lost += n }

	require.Equal(t, StatusOk, jb.Write(hdr(200, false), []byte{200}))
	h, _, status := jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, uint16(200), h.SequenceNumber)

	// 201 was dropped in flight: nothing has been written for it yet.
	h, payload, status := jb.Read()
	assert.Equal(t, StatusOutputUnderflow, status)
	assert.Equal(t, uint16(201), h.SequenceNumber)
	assert.Equal(t, silenceFrame(), payload)

	require.Equal(t, StatusOk, jb.Write(hdr(202, false), []byte{202}))
	h, _, status = jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, uint16(202), h.SequenceNumber)

	require.Equal(t, StatusOk, jb.Write(hdr(203, false), []byte{203}))
	h, _, status = jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, uint16(203), h.SequenceNumber)

	assert.Equal(t, 1, lost)
}

// S3 — Overflow.
func TestJitterBufferOverflow(t *testing.T) {
	jb := NewJitterBuffer(4, 1, DefaultMaxDelay, silenceFrame)

	statuses := []Status{}
	for _, seq := range []uint16{10, 11, 12, 13, 14} {
		statuses = append(statuses, jb.Write(hdr(seq, false), []byte{byte(seq)}))
	}
	assert.Equal(t, []Status{StatusOk, StatusOk, StatusOk, StatusOk, StatusInputOverflow}, statuses)
}

func TestJitterBufferSequenceWrap(t *testing.T) {
	jb := NewJitterBuffer(8, 2, DefaultMaxDelay, silenceFrame)

	require.Equal(t, StatusOk, jb.Write(hdr(65535, false), []byte{1}))
	require.Equal(t, StatusOk, jb.Write(hdr(0, false), []byte{2}))

	h1, _, status1 := jb.Read()
	h2, _, status2 := jb.Read()
	require.Equal(t, StatusOk, status1)
	require.Equal(t, StatusOk, status2)
	assert.Equal(t, uint16(65535), h1.SequenceNumber)
	assert.Equal(t, uint16(0), h2.SequenceNumber)
}

func TestJitterBufferLatePacketDropped(t *testing.T) {
	jb := NewJitterBuffer(16, 1, DefaultMaxDelay, silenceFrame)

	require.Equal(t, StatusOk, jb.Write(hdr(100, false), []byte{1}))
	_, _, _ = jb.Read() // consumes 100, min_seq becomes 101

	status := jb.Write(hdr(99, false), []byte{2})
	assert.Equal(t, StatusOk, status)
	assert.Equal(t, 0, jb.Size())
}

func TestJitterBufferMarkerResetsAfterSilence(t *testing.T) {
	jb := NewJitterBuffer(16, 1, DefaultMaxDelay, silenceFrame)
	jb.silentPeriod = 5 * time.Millisecond

	require.Equal(t, StatusOk, jb.Write(hdr(500, false), []byte{1}))
	_, _, _ = jb.Read()

	time.Sleep(10 * time.Millisecond)

	require.Equal(t, StatusOk, jb.Write(hdr(900, true), []byte{2}))
	h, _, status := jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, uint16(900), h.SequenceNumber)
}

func TestJitterBufferRepeatLast(t *testing.T) {
	jb := NewJitterBuffer(8, 1, DefaultMaxDelay, silenceFrame)
	require.Equal(t, StatusOk, jb.Write(hdr(50, false), []byte{9}))

	h, payload, ok := jb.RepeatLast(50)
	require.True(t, ok)
	assert.Equal(t, uint16(50), h.SequenceNumber)
	assert.Equal(t, []byte{9}, payload)

	// Repeat does not invalidate: a normal Read still sees it.
	h2, _, status := jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, uint16(50), h2.SequenceNumber)
}
