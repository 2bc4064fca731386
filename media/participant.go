// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"math/rand"
	"sync"
	"time"
)

// RTCPState is the per-participant state that only exists once RTCP has
// been exchanged with that source (§3).
type RTCPState struct {
	LastSRTimestamp time.Time
	SDESItems       map[uint8]string
}

// ParticipantRecord is the shared per-SSRC state coupling the wire codec,
// jitter buffer and RTCP handler (§3).
type ParticipantRecord struct {
	SSRC                 uint32
	IsSelf               bool
	InitialRTPTimestamp  uint32

	// Own-sent counters; only meaningful for the self participant. Mutated
	// only by the sender goroutine (C4), read by the RTCP goroutine (C6);
	// both sides go through the database mutex so no separate atomics are
	// needed here.
	TotalPackets uint32
	TotalBytes   uint32

	PacketsLost         uint32
	ExtendedHighestSeq  uint32
	InterarrivalJitter  float32
	LastSeen            time.Time

	// RTT is the most recent round-trip time estimate derived from this
	// remote's reception report about our own SR (§5 "RTT estimation").
	RTT time.Duration

	RTCPData *RTCPState

	// prevPacketsLost/prevExtendedHighestSeq back the running fraction-lost
	// computation described in §4.2: deltas since the last report built for
	// this remote.
	prevPacketsLost        uint32
	prevExtendedHighestSeq uint32
}

// ParticipantListener observes creation/removal of remote participants.
// Notifications are delivered by SSRC value, never by pointer, so observers
// never hold a reference into a removed record (§9 "Cyclic references").
type ParticipantListener interface {
	OnRemoteAdded(ssrc uint32)
	OnRemoteRemoved(ssrc uint32)
}

// ParticipantDB is the session-scoped (not global, see §9) map of
// SSRC -> ParticipantRecord, with a distinguished self entry.
type ParticipantDB struct {
	mu        sync.Mutex
	self      *ParticipantRecord
	remotes   map[uint32]*ParticipantRecord
	listeners []ParticipantListener
}

// NewParticipantDB creates the database with the self participant already
// present, as required by invariant 3 (§3).
func NewParticipantDB(selfSSRC uint32) *ParticipantDB {
	if selfSSRC == 0 {
		selfSSRC = rand.Uint32()
	}
	return &ParticipantDB{
		self: &ParticipantRecord{
			SSRC:                selfSSRC,
			IsSelf:              true,
			InitialRTPTimestamp: rand.Uint32(),
			LastSeen:            time.Now(),
		},
		remotes: make(map[uint32]*ParticipantRecord),
	}
}

// Self returns the self participant record. Infallible: it is created at
// construction and lives until the database is discarded.
func (db *ParticipantDB) Self() *ParticipantRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.self
}

// Remote returns the existing record for ssrc, or creates one with default
// counters and notifies listeners of its creation.
func (db *ParticipantDB) Remote(ssrc uint32) *ParticipantRecord {
	db.mu.Lock()
	rec, ok := db.remotes[ssrc]
	if ok {
		db.mu.Unlock()
		return rec
	}

	rec = &ParticipantRecord{
		SSRC:     ssrc,
		LastSeen: time.Now(),
	}
	db.remotes[ssrc] = rec
	listeners := append([]ParticipantListener(nil), db.listeners...)
	db.mu.Unlock()

	for _, l := range listeners {
		l.OnRemoteAdded(ssrc)
	}
	return rec
}

// GetAllRemote returns a read-only snapshot of remote participants so the
// reporter (C6) can build RTCP packets without holding the mutex during I/O.
func (db *ParticipantDB) GetAllRemote() []ParticipantRecord {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]ParticipantRecord, 0, len(db.remotes))
	for _, rec := range db.remotes {
		out = append(out, *rec)
	}
	return out
}

// Remove deletes the remote participant and notifies listeners.
func (db *ParticipantDB) Remove(ssrc uint32) {
	db.mu.Lock()
	_, ok := db.remotes[ssrc]
	delete(db.remotes, ssrc)
	listeners := append([]ParticipantListener(nil), db.listeners...)
	db.mu.Unlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		l.OnRemoteRemoved(ssrc)
	}
}

func (db *ParticipantDB) IsInDatabase(ssrc uint32) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.remotes[ssrc]
	return ok
}

func (db *ParticipantDB) RegisterListener(l ParticipantListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.listeners = append(db.listeners, l)
}

func (db *ParticipantDB) UnregisterListener(l ParticipantListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, cur := range db.listeners {
		if cur == l {
			db.listeners = append(db.listeners[:i], db.listeners[i+1:]...)
			return
		}
	}
}

// TouchLastSeen updates last-seen for ssrc under the database mutex, used by
// both the RTP listener (C5) and RTCP handler (C6) on any inbound traffic.
func (db *ParticipantDB) TouchLastSeen(ssrc uint32, now time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.self.SSRC == ssrc {
		db.self.LastSeen = now
		return
	}
	if rec, ok := db.remotes[ssrc]; ok {
		rec.LastSeen = now
	}
}

// WithRemote runs fn with exclusive access to the record for ssrc, creating
// it if absent. It is the primitive C5/C6 use to update counters.
func (db *ParticipantDB) WithRemote(ssrc uint32, fn func(rec *ParticipantRecord)) {
	db.mu.Lock()
	rec, ok := db.remotes[ssrc]
	var created bool
	if !ok {
		rec = &ParticipantRecord{SSRC: ssrc, LastSeen: time.Now()}
		db.remotes[ssrc] = rec
		created = true
	}
	fn(rec)
	listeners := append([]ParticipantListener(nil), db.listeners...)
	db.mu.Unlock()

	if created {
		for _, l := range listeners {
			l.OnRemoteAdded(ssrc)
		}
	}
}

// WithSelf runs fn with exclusive access to the self record.
func (db *ParticipantDB) WithSelf(fn func(rec *ParticipantRecord)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(db.self)
}

// StaleRemotes returns the SSRCs of remote participants whose LastSeen is
// older than timeout, relative to now. Used by the RTCP handler's 60s
// timeout sweep (§4.6).
func (db *ParticipantDB) StaleRemotes(now time.Time, timeout time.Duration) []uint32 {
	db.mu.Lock()
	defer db.mu.Unlock()

	var stale []uint32
	for ssrc, rec := range db.remotes {
		if now.Sub(rec.LastSeen) > timeout {
			stale = append(stale, ssrc)
		}
	}
	return stale
}

// FractionLost computes the fraction lost for ssrc since the previous call
// (or since creation), saturating to [0,255] and updating the running
// previous-interval snapshot, per §4.2.
func (db *ParticipantDB) FractionLost(ssrc uint32) uint8 {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, ok := db.remotes[ssrc]
	if !ok {
		return 0
	}

	expectedInterval := int64(rec.ExtendedHighestSeq) - int64(rec.prevExtendedHighestSeq)
	lostInterval := int64(rec.PacketsLost) - int64(rec.prevPacketsLost)

	rec.prevExtendedHighestSeq = rec.ExtendedHighestSeq
	rec.prevPacketsLost = rec.PacketsLost

	if expectedInterval <= 0 || lostInterval <= 0 {
		return 0
	}

	fraction := lostInterval * 256 / expectedInterval
	if fraction < 0 {
		return 0
	}
	if fraction > 255 {
		return 255
	}
	return uint8(fraction)
}
