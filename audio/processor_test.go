// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestG711ProcessorRoundTrip(t *testing.T) {
	p := NewG711Processor(false)
	require.NoError(t, p.Configure(8000, 1))

	pcm := make([]byte, 320) // 160 16-bit samples
	for i := range pcm {
		pcm[i] = byte(i)
	}

	encoded, err := p.ProcessInput(pcm)
	require.NoError(t, err)
	assert.Equal(t, 160, len(encoded))

	decoded, err := p.ProcessOutput(encoded)
	require.NoError(t, err)
	assert.Equal(t, 320, len(decoded))
}

func TestG711ProcessorRejectsUnsupportedConfig(t *testing.T) {
	p := NewG711Processor(true)
	assert.Error(t, p.Configure(16000, 1))
	assert.Error(t, p.Configure(8000, 2))
}

func TestG711ProcessorPayloadTypeAndSilence(t *testing.T) {
	ulaw := NewG711Processor(false)
	assert.Equal(t, uint8(0), ulaw.PayloadType())
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, ulaw.SilenceFrame()[:3])

	alaw := NewG711Processor(true)
	assert.Equal(t, uint8(8), alaw.PayloadType())
	assert.Equal(t, []byte{0xD5, 0xD5, 0xD5}, alaw.SilenceFrame()[:3])
}

func TestProfilingProcessorCountsCalls(t *testing.T) {
	inner := NewG711Processor(false)
	require.NoError(t, inner.Configure(8000, 1))

	p := WrapProfiling(inner)
	_, err := p.ProcessInput(make([]byte, 320))
	require.NoError(t, err)
	_, err = p.ProcessOutput(make([]byte, 160))
	require.NoError(t, err)

	assert.Equal(t, 1, p.InputCalls)
	assert.Equal(t, 1, p.OutputCalls)
	assert.NotNil(t, p.SilenceFrame())
}

func TestSilenceDetectRMSframe(t *testing.T) {
	silence := make([]byte, 160)
	assert.True(t, SilenceDetectRMSframe(silence, 8000, 1.0))
}

func TestMutedProcessorSubstitutesSilence(t *testing.T) {
	inner := NewG711Processor(false)
	require.NoError(t, inner.Configure(8000, 1))

	p := WrapMuted(inner)
	pcm := make([]byte, 320)
	for i := range pcm {
		pcm[i] = 0x7F
	}

	unmuted, err := p.ProcessInput(pcm)
	require.NoError(t, err)
	assert.NotEqual(t, inner.SilenceFrame(), unmuted)

	p.Mute(true)
	assert.True(t, p.Muted())

	muted, err := p.ProcessInput(pcm)
	require.NoError(t, err)
	assert.Equal(t, inner.SilenceFrame(), muted)

	p.Mute(false)
	assert.False(t, p.Muted())
}
