// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerDemultiplexesRTPAndRTCP(t *testing.T) {
	a, b := newPipeTransportPair()
	defer a.Close()
	defer b.Close()

	db := NewParticipantDB(1)
	var rtcpSeen [][]byte
	l := NewListener(db, a, 8000, func(uint32) *JitterBuffer {
		return NewJitterBuffer(16, 1, DefaultMaxDelay, func() []byte { return nil })
	})
	l.OnRTCP = func(b []byte) { rtcpSeen = append(rtcpSeen, append([]byte(nil), b...)) }

	go l.Run()
	defer l.Stop()

	rtpPacket := hdr(10, false)
	rtpPacket.SSRC = 555
	rtpBytes, err := EncodeRTP(rtpPacket, []byte("hello"), 1500)
	require.NoError(t, err)
	require.NoError(t, b.Send(rtpBytes))

	rtcpBytes, err := BuildCompoundRTCP([]rtcp.Packet{&rtcp.ReceiverReport{SSRC: 99}})
	require.NoError(t, err)
	require.NoError(t, b.Send(rtcpBytes))

	require.Eventually(t, func() bool {
		return db.IsInDatabase(555) && len(rtcpSeen) == 1
	}, time.Second, 5*time.Millisecond)

	// An RTCP-only SSRC must never be mistaken for an RTP participant.
	assert.False(t, db.IsInDatabase(99))
}

func TestListenerUpdatesParticipantOnRTP(t *testing.T) {
	a, b := newPipeTransportPair()
	defer a.Close()
	defer b.Close()

	db := NewParticipantDB(1)
	l := NewListener(db, a, 8000, func(uint32) *JitterBuffer {
		return NewJitterBuffer(16, 1, DefaultMaxDelay, func() []byte { return nil })
	})

	go l.Run()
	defer l.Stop()

	header := hdr(5, false)
	header.SSRC = 777
	encoded, err := EncodeRTP(header, []byte("x"), 1500)
	require.NoError(t, err)
	require.NoError(t, b.Send(encoded))

	require.Eventually(t, func() bool {
		return db.IsInDatabase(777)
	}, time.Second, 5*time.Millisecond)

	rec := db.Remote(777)
	assert.NotZero(t, rec.ExtendedHighestSeq)
	assert.NotNil(t, l.JitterBufferFor(777))
}
