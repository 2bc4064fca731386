// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEndToEndFrameDelivery(t *testing.T) {
	transportA, transportB := newPipeTransportPair()

	silence := func() []byte { return []byte("SIL") }

	sessA := NewSession(SessionConfig{
		SelfSSRC:             1111,
		ClockRate:            8000,
		MTU:                  1500,
		JitterBufferSize:     16,
		JitterMinBufferPkts:  1,
		SilenceFrame:         silence,
		ShutdownOnLastRemote: false,
	}, transportA)

	sessB := NewSession(SessionConfig{
		SelfSSRC:             2222,
		ClockRate:            8000,
		MTU:                  1500,
		JitterBufferSize:     16,
		JitterMinBufferPkts:  1,
		SilenceFrame:         silence,
		ShutdownOnLastRemote: false,
	}, transportB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sessA.StartUp(ctx))
	require.NoError(t, sessB.StartUp(ctx))
	defer sessA.Shutdown(context.Background())
	defer sessB.Shutdown(context.Background())

	require.NoError(t, sessA.Sender.SendFrame([]byte("hello-from-a"), false))

	require.Eventually(t, func() bool {
		return sessB.DB.IsInDatabase(1111)
	}, time.Second, 5*time.Millisecond)

	jb := sessB.Listener.JitterBufferFor(1111)
	require.NotNil(t, jb)

	require.Eventually(t, func() bool {
		return jb.Size() > 0
	}, time.Second, 5*time.Millisecond)

	_, payload, status := jb.Read()
	require.Equal(t, StatusOk, status)
	assert.Equal(t, []byte("hello-from-a"), payload)
}

func TestSessionConfigDerivesFromCodec(t *testing.T) {
	transportA, _ := newPipeTransportPair()
	defer transportA.Close()

	codec := testCodec{payloadType: 8, sampleRate: 8000}
	sess := NewSession(SessionConfig{SelfSSRC: 1, Codec: codec}, transportA)

	assert.Equal(t, uint8(8), sess.Sender.payloadType)
	assert.Equal(t, uint32(8000), sess.Sender.clockRate)
}

type testCodec struct {
	payloadType uint8
	sampleRate  int
}

func (c testCodec) Configure(int, int) error               { return nil }
func (c testCodec) ProcessInput(pcm []byte) ([]byte, error) { return pcm, nil }
func (c testCodec) ProcessOutput(p []byte) ([]byte, error)  { return p, nil }
func (c testCodec) Cleanup() error                          { return nil }
func (c testCodec) SupportedFormats() []uint8               { return nil }
func (c testCodec) SupportedSampleRates() []int             { return []int{c.sampleRate} }
func (c testCodec) SupportedBufferSizes() []int             { return nil }
func (c testCodec) PayloadType() uint8                      { return c.payloadType }
