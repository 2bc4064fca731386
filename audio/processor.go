// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package audio

import (
	"fmt"
	"time"
)

// Processor is the capability interface external audio codecs plug into.
// The session core never imports a concrete codec; it only ever holds a
// Processor, selected by payload type at session setup.
type Processor interface {
	Configure(sampleRate, channels int) error
	// ProcessInput encodes one frame of linear PCM into wire payload bytes.
	ProcessInput(pcm []byte) ([]byte, error)
	// ProcessOutput decodes one wire payload into linear PCM.
	ProcessOutput(payload []byte) ([]byte, error)
	Cleanup() error

	SupportedFormats() []uint8
	SupportedSampleRates() []int
	SupportedBufferSizes() []int
	PayloadType() uint8
}

// SilenceSource is implemented by a Processor that can supply the
// concealment payload a jitter buffer plays out on loss, in the codec's own
// wire format (§9 "Silence concealment payload").
type SilenceSource interface {
	SilenceFrame() []byte
}

// G711Processor implements Processor for ITU-T G.711 mu-law/A-law,
// grounded on the byte-buffer codec in g711.go. One instance handles
// exactly one of the two laws, selected at construction.
type G711Processor struct {
	alaw       bool
	sampleRate int
	channels   int
}

// NewG711Processor creates a PCMU (alaw=false, payload type 0) or PCMA
// (alaw=true, payload type 8) processor, per RFC 3551's static payload type
// assignment.
func NewG711Processor(alaw bool) *G711Processor {
	return &G711Processor{alaw: alaw}
}

func (p *G711Processor) Configure(sampleRate, channels int) error {
	if sampleRate != 8000 {
		return fmt.Errorf("audio: g711 only supports 8000Hz, got %d", sampleRate)
	}
	if channels != 1 {
		return fmt.Errorf("audio: g711 only supports mono, got %d channels", channels)
	}
	p.sampleRate = sampleRate
	p.channels = channels
	return nil
}

func (p *G711Processor) ProcessInput(pcm []byte) ([]byte, error) {
	out := make([]byte, len(pcm)/2)
	var n int
	var err error
	if p.alaw {
		n, err = EncodeAlawTo(out, pcm)
	} else {
		n, err = EncodeUlawTo(out, pcm)
	}
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (p *G711Processor) ProcessOutput(payload []byte) ([]byte, error) {
	out := make([]byte, len(payload)*2)
	var n int
	var err error
	if p.alaw {
		n, err = DecodeAlawTo(out, payload)
	} else {
		n, err = DecodeUlawTo(out, payload)
	}
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (p *G711Processor) Cleanup() error { return nil }

func (p *G711Processor) SupportedFormats() []uint8 {
	if p.alaw {
		return []uint8{FORMAT_TYPE_ALAW}
	}
	return []uint8{FORMAT_TYPE_ULAW}
}

func (p *G711Processor) SupportedSampleRates() []int { return []int{8000} }
func (p *G711Processor) SupportedBufferSizes() []int { return []int{80, 160, 240} } // 10/20/30ms at 8kHz

func (p *G711Processor) PayloadType() uint8 {
	if p.alaw {
		return 8
	}
	return 0
}

// SilenceFrame returns 20ms of G.711 silence: 0xFF is mu-law's zero-amplitude
// code, 0xD5 is A-law's.
func (p *G711Processor) SilenceFrame() []byte {
	code := byte(0xFF)
	if p.alaw {
		code = 0xD5
	}
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = code
	}
	return frame
}

// ProfilingProcessor decorates any Processor to record per-call timing,
// without the wrapped codec knowing it is being measured (§9 "Dynamic
// dispatch for audio processors").
type ProfilingProcessor struct {
	Processor

	InputCalls, OutputCalls   int
	InputTotal, OutputTotal   time.Duration
}

// WrapProfiling returns p decorated with call-timing counters.
func WrapProfiling(p Processor) *ProfilingProcessor {
	return &ProfilingProcessor{Processor: p}
}

func (p *ProfilingProcessor) ProcessInput(pcm []byte) ([]byte, error) {
	start := time.Now()
	out, err := p.Processor.ProcessInput(pcm)
	p.InputCalls++
	p.InputTotal += time.Since(start)
	return out, err
}

func (p *ProfilingProcessor) ProcessOutput(payload []byte) ([]byte, error) {
	start := time.Now()
	out, err := p.Processor.ProcessOutput(payload)
	p.OutputCalls++
	p.OutputTotal += time.Since(start)
	return out, err
}

// AverageInput returns the mean ProcessInput call latency, or 0 if never
// called.
func (p *ProfilingProcessor) AverageInput() time.Duration {
	if p.InputCalls == 0 {
		return 0
	}
	return p.InputTotal / time.Duration(p.InputCalls)
}

// AverageOutput returns the mean ProcessOutput call latency, or 0 if never
// called.
func (p *ProfilingProcessor) AverageOutput() time.Duration {
	if p.OutputCalls == 0 {
		return 0
	}
	return p.OutputTotal / time.Duration(p.OutputCalls)
}

// SilenceFrame delegates to the wrapped Processor when it implements
// SilenceSource. Embedding only promotes the Processor interface's own
// methods, so this forwards explicitly instead.
func (p *ProfilingProcessor) SilenceFrame() []byte {
	if s, ok := p.Processor.(SilenceSource); ok {
		return s.SilenceFrame()
	}
	return nil
}
