// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipantDBHasSelf(t *testing.T) {
	db := NewParticipantDB(42)
	self := db.Self()
	require.NotNil(t, self)
	assert.Equal(t, uint32(42), self.SSRC)
	assert.True(t, self.IsSelf)
}

func TestRemoteCreatedOnFirstAccessNotifiesListener(t *testing.T) {
	db := NewParticipantDB(1)

	var added, removed []uint32
	db.RegisterListener(&fakeListener{
		onAdd: func(ssrc uint32) { added = append(added, ssrc) },
		onRem: func(ssrc uint32) { removed = append(removed, ssrc) },
	})

	rec := db.Remote(99)
	assert.Equal(t, uint32(99), rec.SSRC)
	assert.Equal(t, []uint32{99}, added)

	// A second access must not notify again.
	_ = db.Remote(99)
	assert.Equal(t, []uint32{99}, added)

	db.Remove(99)
	assert.Equal(t, []uint32{99}, removed)
	assert.False(t, db.IsInDatabase(99))
}

func TestWithRemoteCreatesAndNotifies(t *testing.T) {
	db := NewParticipantDB(1)

	var added []uint32
	db.RegisterListener(&fakeListener{onAdd: func(ssrc uint32) { added = append(added, ssrc) }})

	db.WithRemote(7, func(rec *ParticipantRecord) {
		rec.TotalPackets = 5
	})

	rec := db.Remote(7)
	assert.Equal(t, uint32(5), rec.TotalPackets)
	assert.Equal(t, []uint32{7}, added)
}

func TestStaleRemotes(t *testing.T) {
	db := NewParticipantDB(1)
	db.WithRemote(10, func(rec *ParticipantRecord) {
		rec.LastSeen = time.Now().Add(-time.Minute)
	})
	db.WithRemote(11, func(rec *ParticipantRecord) {
		rec.LastSeen = time.Now()
	})

	stale := db.StaleRemotes(time.Now(), 30*time.Second)
	assert.Equal(t, []uint32{10}, stale)
}

func TestFractionLost(t *testing.T) {
	db := NewParticipantDB(1)
	db.WithRemote(5, func(rec *ParticipantRecord) {
		rec.ExtendedHighestSeq = 100
		rec.PacketsLost = 10
	})

	// First call's interval is measured from zero, since no previous report
	// has been built for this remote yet.
	assert.Equal(t, uint8(10*256/100), db.FractionLost(5))

	db.WithRemote(5, func(rec *ParticipantRecord) {
		rec.ExtendedHighestSeq = 200 // +100 expected
		rec.PacketsLost = 35         // +25 lost
	})

	fraction := db.FractionLost(5)
	assert.Equal(t, uint8(25*256/100), fraction)
}

func TestUnregisterListenerStopsNotifications(t *testing.T) {
	db := NewParticipantDB(1)

	var count int
	l := &fakeListener{onAdd: func(uint32) { count++ }}
	db.RegisterListener(l)
	db.UnregisterListener(l)

	db.Remote(3)
	assert.Equal(t, 0, count)
}

type fakeListener struct {
	onAdd func(ssrc uint32)
	onRem func(ssrc uint32)
}

func (f *fakeListener) OnRemoteAdded(ssrc uint32) {
	if f.onAdd != nil {
		f.onAdd(ssrc)
	}
}

func (f *fakeListener) OnRemoteRemoved(ssrc uint32) {
	if f.onRem != nil {
		f.onRem(ssrc)
	}
}
