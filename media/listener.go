// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"errors"
	"sync"
	"time"
)

// remoteStream is the per-SSRC receive-side state that is internal to the
// listener goroutine: extended sequence tracking, the RFC 3550 section
// 6.4.1 jitter estimator and the jitter buffer feeding playout.
type remoteStream struct {
	seq          RTPExtendedSequenceNumber
	seqInit      bool
	lastTransit  int64
	jitterBuffer *JitterBuffer
}

// Listener is the RTP receive path (C5): a dedicated goroutine that
// demultiplexes RTP from RTCP on a shared Transport, updates the
// participant database and feeds each remote's jitter buffer.
type Listener struct {
	db        *ParticipantDB
	transport Transport
	clockRate uint32

	newJitterBuffer func(ssrc uint32) *JitterBuffer

	mu      sync.Mutex
	streams map[uint32]*remoteStream

	running bool
	done    chan struct{}

	// OnRTCP receives raw RTCP datagrams so the RTCP handler (C6) can parse
	// and act on them without a second socket.
	OnRTCP func(b []byte)
}

// NewListener creates a listener bound to db and transport. newJitterBuffer
// is called once per newly seen remote SSRC to construct its jitter buffer,
// letting callers inject buffer size/silence-frame policy (§9).
func NewListener(db *ParticipantDB, transport Transport, clockRate uint32, newJitterBuffer func(ssrc uint32) *JitterBuffer) *Listener {
	if clockRate == 0 {
		clockRate = 1000
	}
	return &Listener{
		db:              db,
		transport:       transport,
		clockRate:       clockRate,
		newJitterBuffer: newJitterBuffer,
		streams:         make(map[uint32]*remoteStream),
		done:            make(chan struct{}),
	}
}

// Run blocks, reading datagrams until the transport is closed or Stop is
// called. It is meant to run in its own goroutine, per §6's "one goroutine
// per I/O boundary" design.
func (l *Listener) Run() error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	buf := make([]byte, 1500)
	for {
		select {
		case <-l.done:
			return nil
		default:
		}

		n, err := l.transport.Recv(buf)
		if err != nil {
			if errors.Is(err, ErrSocketTimeout) {
				continue
			}
			if errors.Is(err, ErrSocketClosed) {
				return nil
			}
			Logger.Warn().Err(err).Msg("transport recv failed")
			continue
		}

		pkt := append([]byte(nil), buf[:n]...)
		if IsRTCP(pkt) {
			if l.OnRTCP != nil {
				l.OnRTCP(pkt)
			}
			continue
		}

		l.handleRTP(pkt)
	}
}

// Stop signals Run to return on its next loop iteration.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.done)
		l.running = false
	}
}

func (l *Listener) handleRTP(b []byte) {
	header, payload, err := DecodeRTP(b)
	if err != nil {
		Logger.Debug().Err(err).Msg("dropping unparseable rtp packet")
		return
	}

	now := time.Now()

	l.mu.Lock()
	stream, ok := l.streams[header.SSRC]
	if !ok {
		stream = &remoteStream{}
		if l.newJitterBuffer != nil {
			stream.jitterBuffer = l.newJitterBuffer(header.SSRC)
		}
		l.streams[header.SSRC] = stream
	}
	l.mu.Unlock()

	if !stream.seqInit {
		stream.seq.InitSeq(header.SequenceNumber)
		stream.seqInit = true
	} else if err := stream.seq.UpdateSeq(header.SequenceNumber); err != nil {
		Logger.Debug().Err(err).Uint32("ssrc", header.SSRC).Msg("rtp sequence anomaly")
	}

	arrival := int64(NTPTimestamp(now) >> 16) // arrival time in the packet's clock-agnostic units
	transit := arrival - int64(header.Timestamp)*int64(65536)/int64(l.clockRate)

	var jitterDelta float32
	if stream.lastTransit != 0 {
		d := transit - stream.lastTransit
		if d < 0 {
			d = -d
		}
		jitterDelta = float32(d)
	}
	stream.lastTransit = transit

	extSeq := stream.seq.ExtendedHighestSeq()

	if stream.jitterBuffer != nil {
		if status := stream.jitterBuffer.Write(header, payload); status == StatusInputOverflow {
			Logger.Debug().Uint32("ssrc", header.SSRC).Msg("jitter buffer input overflow")
		}
	}

	l.db.WithRemote(header.SSRC, func(rec *ParticipantRecord) {
		rec.ExtendedHighestSeq = extSeq
		rec.LastSeen = now
		if jitterDelta != 0 {
			rec.InterarrivalJitter += (jitterDelta - rec.InterarrivalJitter) / 16
		}
	})
}

// JitterBufferFor returns the jitter buffer for ssrc, or nil if no packet
// has been received from it yet.
func (l *Listener) JitterBufferFor(ssrc uint32) *JitterBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	stream, ok := l.streams[ssrc]
	if !ok {
		return nil
	}
	return stream.jitterBuffer
}
