// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"time"

	"github.com/pion/rtp"
)

// Sender is the RTP sender path (C4): it packetizes outgoing audio frames
// and updates the self participant's own-sent counters.
type Sender struct {
	db        *ParticipantDB
	transport Transport
	mtu       int
	payloadType uint8
	clockRate   uint32

	seq RTPExtendedSequenceNumber

	startTime    time.Time // RTP timestamps count clock ticks from here
	lastSendTime time.Time
	marker       bool // true for the next packet, set after a silent gap
}

// NewSender creates a sender bound to db's self participant. clockRate
// defaults to 1000Hz per §4.4 when zero.
func NewSender(db *ParticipantDB, transport Transport, payloadType uint8, clockRate uint32, mtu int) *Sender {
	if clockRate == 0 {
		clockRate = 1000
	}
	if mtu == 0 {
		mtu = 1500
	}

	s := &Sender{
		db:          db,
		transport:   transport,
		mtu:         mtu,
		payloadType: payloadType,
		clockRate:   clockRate,
		startTime:   time.Now(),
		marker:      true, // first packet of the session always sets the marker
	}
	s.seq = NewRTPSequencer()
	return s
}

// SendFrame builds an RTP packet for one outgoing audio frame and writes it
// to the transport, per §4.4.
func (s *Sender) SendFrame(payload []byte, silentGap bool) error {
	self := s.db.Self()

	now := time.Now()
	elapsedMs := now.Sub(s.startTime).Milliseconds()

	timestamp := self.InitialRTPTimestamp + uint32(elapsedMs*int64(s.clockRate)/1000)

	marker := s.marker || silentGap
	s.marker = false

	header := rtp.Header{
		Version:        RTPVersion,
		Marker:         marker,
		PayloadType:    s.payloadType,
		SequenceNumber: s.seq.NextSeqNumber(),
		Timestamp:      timestamp,
		SSRC:           self.SSRC,
	}

	b, err := EncodeRTP(header, payload, s.mtu)
	if err != nil {
		return err
	}

	if err := s.transport.Send(b); err != nil {
		return err
	}

	s.db.WithSelf(func(rec *ParticipantRecord) {
		rec.TotalPackets++
		rec.TotalBytes += uint32(len(payload))
		rec.LastSeen = now
	})
	s.lastSendTime = now

	if silentGap {
		s.marker = true
	}
	return nil
}
