// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package audio

import "sync/atomic"

// MutedProcessor decorates a Processor with local mute control: while muted,
// ProcessInput returns the wrapped codec's silence frame instead of encoding
// the captured audio, so a remote never hears anything the caller has muted.
type MutedProcessor struct {
	Processor

	muted atomic.Bool
}

// WrapMuted returns p decorated with mute control, starting unmuted.
func WrapMuted(p Processor) *MutedProcessor {
	return &MutedProcessor{Processor: p}
}

// Mute sets the mute state. Safe to call from any goroutine.
func (p *MutedProcessor) Mute(mute bool) {
	p.muted.Store(mute)
}

// Muted reports the current mute state.
func (p *MutedProcessor) Muted() bool {
	return p.muted.Load()
}

func (p *MutedProcessor) ProcessInput(pcm []byte) ([]byte, error) {
	if p.muted.Load() {
		if s, ok := p.Processor.(SilenceSource); ok {
			return s.SilenceFrame(), nil
		}
		return make([]byte, len(pcm)), nil
	}
	return p.Processor.ProcessInput(pcm)
}

// SilenceFrame delegates to the wrapped Processor when it implements
// SilenceSource. Embedding only promotes the Processor interface's own
// methods, so this forwards explicitly instead.
func (p *MutedProcessor) SilenceFrame() []byte {
	if s, ok := p.Processor.(SilenceSource); ok {
		return s.SilenceFrame()
	}
	return nil
}
