// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// Status is the result of a JitterBuffer operation.
type Status int

const (
	StatusOk Status = iota
	StatusInputOverflow
	StatusOutputUnderflow
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusInputOverflow:
		return "input_overflow"
	case StatusOutputUnderflow:
		return "output_underflow"
	default:
		return "unknown"
	}
}

type playoutState int

const (
	stateFilling playoutState = iota
	statePlaying
)

// jitterSlot is one ring buffer cell (§3 "Jitter buffer slot").
type jitterSlot struct {
	valid         bool
	header        rtp.Header
	payload       []byte
	receptionTime time.Time
}

// JitterBuffer is the sequence-ordered ring buffer of exactly one remote
// SSRC's RTP packets (C3). It owns playout-delay adaption and loss
// concealment; see §4.3.
type JitterBuffer struct {
	mu sync.Mutex

	slots         []jitterSlot
	n             int
	minSeq        uint16
	minSeqInit    bool
	nextReadIndex int
	size          int

	state             playoutState
	minBufferPackages int
	maxDelay          time.Duration

	// silentPeriod bounds how long since the last accepted write before a
	// marker-bearing packet is treated as following a silent interval and
	// resets min_seq, per §4.3's "marker bit after a silent period". The
	// spec does not pin an exact value; this mirrors a few missed 20ms
	// frames, see DESIGN.md.
	silentPeriod time.Duration
	lastWrite    time.Time

	// SilenceFrame supplies the canonical concealment payload, injected by
	// the owning codec rather than hardcoded here (§9).
	SilenceFrame func() []byte

	// OnLoss is invoked with the number of sequence numbers skipped over
	// whenever Read advances past a gap, so callers can add it to both the
	// per-remote and session loss counters (§4.3).
	OnLoss func(n int)
}

// NewJitterBuffer creates a ring buffer of n slots. minBufferPackages is the
// playout-adaption fill target (§4.3.1); maxDelay is the staleness bound
// applied on Read (default 200ms, see DefaultMaxDelay).
func NewJitterBuffer(n int, minBufferPackages int, maxDelay time.Duration, silenceFrame func() []byte) *JitterBuffer {
	return &JitterBuffer{
		slots:             make([]jitterSlot, n),
		n:                 n,
		minBufferPackages: minBufferPackages,
		maxDelay:          maxDelay,
		silentPeriod:      500 * time.Millisecond,
		state:             stateFilling,
		SilenceFrame:      silenceFrame,
	}
}

// DefaultMaxDelay is the default slot staleness bound (§4.3).
const DefaultMaxDelay = 200 * time.Millisecond

// DefaultJitterBufferSize is a typical ring size (§3).
const DefaultJitterBufferSize = 64

func seqDistance(seq, base uint16) int {
	d := int(seq) - int(base)
	if d > 1<<15 {
		d -= 1 << 16
	} else if d < -(1 << 15) {
		d += 1 << 16
	}
	return d
}

// Write inserts an incoming RTP packet into the ring, per §4.3's insertion
// policy.
func (j *JitterBuffer) Write(header rtp.Header, payload []byte) Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()

	silentRestart := header.Marker && j.minSeqInit && !j.lastWrite.IsZero() && now.Sub(j.lastWrite) > j.silentPeriod
	if !j.minSeqInit || silentRestart {
		j.minSeq = header.SequenceNumber
		j.minSeqInit = true
	}

	diff := seqDistance(header.SequenceNumber, j.minSeq)

	// Late-loss packet: strictly below min_seq, only treated as such away
	// from the wrap boundary (min_seq < UINT16_MAX - N).
	if diff < 0 && j.minSeq < uint16(1<<16-1-j.n) {
		return StatusOk
	}

	if diff >= j.n {
		return StatusInputOverflow
	}

	if j.size >= j.n {
		return StatusInputOverflow
	}

	idx := (j.nextReadIndex + diff) % j.n
	slot := &j.slots[idx]

	wasValid := slot.valid
	if cap(slot.payload) < len(payload) {
		slot.payload = make([]byte, len(payload))
	} else {
		slot.payload = slot.payload[:len(payload)]
	}
	copy(slot.payload, payload)
	slot.header = header
	slot.receptionTime = now
	slot.valid = true

	if !wasValid {
		j.size++
	}
	j.lastWrite = now

	return StatusOk
}

// Read returns the next in-order packet, or a concealment packet with
// StatusOutputUnderflow when none is available, per §4.3's read policy.
func (j *JitterBuffer) Read() (rtp.Header, []byte, Status) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == stateFilling {
		if j.size < j.minBufferPackages {
			return rtp.Header{SequenceNumber: j.minSeq}, j.conceal(), StatusOutputUnderflow
		}
		j.state = statePlaying
	}

	now := time.Now()
	for i := 0; i < j.n; i++ {
		idx := (j.nextReadIndex + i) % j.n
		slot := &j.slots[idx]

		if slot.valid && now.Sub(slot.receptionTime) > j.maxDelay {
			slot.valid = false
			j.size--
			continue
		}

		if !slot.valid {
			continue
		}

		header := slot.header
		payload := append([]byte(nil), slot.payload...)

		slot.valid = false
		j.size--
		j.nextReadIndex = (idx + 1) % j.n
		j.minSeq = header.SequenceNumber + 1

		if i > 0 && j.OnLoss != nil {
			j.OnLoss(i)
		}

		return header, payload, StatusOk
	}

	// No valid slot found in a full loop: conceal for min_seq, advance past
	// it (skipping the very first read, before anything has ever arrived),
	// and fall back into filling.
	out := rtp.Header{SequenceNumber: j.minSeq}
	payload := j.conceal()
	if j.minSeqInit {
		j.minSeq++
		if j.OnLoss != nil {
			j.OnLoss(1)
		}
	}
	j.state = stateFilling
	return out, payload, StatusOutputUnderflow
}

func (j *JitterBuffer) conceal() []byte {
	if j.SilenceFrame == nil {
		return nil
	}
	return j.SilenceFrame()
}

// Size returns the current occupancy.
func (j *JitterBuffer) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// RepeatLast copies the still-valid slot matching seq into the caller's
// buffers without invalidating it, for limited retransmission semantics
// (§4.3 "Late retrieval").
func (j *JitterBuffer) RepeatLast(seq uint16) (rtp.Header, []byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := 0; i < j.n; i++ {
		idx := (j.nextReadIndex - 1 - i + j.n*2) % j.n
		slot := &j.slots[idx]
		if slot.valid && slot.header.SequenceNumber == seq {
			return slot.header, append([]byte(nil), slot.payload...), true
		}
	}
	return rtp.Header{}, nil, false
}
