// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/rtpconf/audio"
)

// SessionConfig bundles the knobs needed to construct a Session, grounded on
// §4.1's module list. SelfSSRC of zero means generate one randomly.
//
// Codec, when set, drives PayloadType/ClockRate/SilenceFrame from the
// injected audio.Processor (§5 "payload-type-driven default codec
// lookup", generalized from the teacher's fixed PCMA/PCMU table). The
// individual fields remain available to override or to run without any
// audio.Processor at all.
type SessionConfig struct {
	SelfSSRC    uint32
	PayloadType uint8
	ClockRate   uint32
	MTU         int
	Codec       audio.Processor

	JitterBufferSize      int
	JitterMinBufferPkts   int
	JitterMaxDelayMillis  int64
	SilenceFrame          func() []byte

	CNAME  string
	Tool   string
	Config ConfigProvider

	ShutdownOnLastRemote bool
}

// Session is the top-level owner of one conference leg's participant
// database, sender, listener and RTCP handler (§9: session-scoped, never a
// package-level singleton).
type Session struct {
	DB       *ParticipantDB
	Sender   *Sender
	Listener *Listener
	RTCP     *RTCPHandler

	transport Transport

	rtcpIn chan []byte

	mu      sync.Mutex
	running bool
}

// NewSession wires together a Session over an already-connected transport.
func NewSession(cfg SessionConfig, transport Transport) *Session {
	db := NewParticipantDB(cfg.SelfSSRC)

	if cfg.Codec != nil {
		if cfg.PayloadType == 0 && cfg.Codec.PayloadType() != 0 {
			cfg.PayloadType = cfg.Codec.PayloadType()
		}
		if cfg.ClockRate == 0 {
			if rates := cfg.Codec.SupportedSampleRates(); len(rates) > 0 {
				cfg.ClockRate = uint32(rates[0])
			}
		}
		if cfg.SilenceFrame == nil {
			if s, ok := cfg.Codec.(audio.SilenceSource); ok {
				cfg.SilenceFrame = s.SilenceFrame
			}
		}
	}

	maxDelay := DefaultMaxDelay
	if cfg.JitterMaxDelayMillis > 0 {
		maxDelay = time.Duration(cfg.JitterMaxDelayMillis) * time.Millisecond
	}
	jitterSize := cfg.JitterBufferSize
	if jitterSize == 0 {
		jitterSize = DefaultJitterBufferSize
	}
	minBuf := cfg.JitterMinBufferPkts
	if minBuf == 0 {
		minBuf = 3
	}

	rtcp := NewRTCPHandler(db, transport, cfg.CNAME, cfg.Tool, cfg.Config)
	rtcp.ShutdownOnLastRemote = cfg.ShutdownOnLastRemote

	s := &Session{
		DB:        db,
		Sender:    NewSender(db, transport, cfg.PayloadType, cfg.ClockRate, cfg.MTU),
		transport: transport,
		RTCP:      rtcp,
		rtcpIn:    make(chan []byte, 32),
	}

	s.Listener = NewListener(db, transport, cfg.ClockRate, func(ssrc uint32) *JitterBuffer {
		jb := NewJitterBuffer(jitterSize, minBuf, maxDelay, cfg.SilenceFrame)
		jb.OnLoss = func(n int) {
			db.WithRemote(ssrc, func(rec *ParticipantRecord) {
				rec.PacketsLost += uint32(n)
			})
		}
		return jb
	})
	s.Listener.OnRTCP = func(b []byte) {
		select {
		case s.rtcpIn <- b:
		default:
			Logger.Warn().Msg("rtcp inbound channel full, dropping compound packet")
		}
	}

	return s
}

// StartUp launches the listener and RTCP handler goroutines. The caller
// owns driving Sender.SendFrame from its own audio capture loop.
func (s *Session) StartUp(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.RTCP.StartUp(ctx, s.rtcpIn); err != nil {
		return err
	}

	go func() {
		if err := s.Listener.Run(); err != nil {
			Logger.Warn().Err(err).Msg("rtp listener exited with error")
		}
	}()

	return nil
}

// RTT returns the most recent round-trip time estimate to the given remote,
// or 0 if none has been derived yet (§5 "RTT estimation").
func (s *Session) RTT(ssrc uint32) time.Duration {
	if !s.DB.IsInDatabase(ssrc) {
		return 0
	}
	return s.DB.Remote(ssrc).RTT
}

// Shutdown sends a final BYE, stops the listener, and closes the transport.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	err := s.RTCP.Shutdown(ctx)
	s.Listener.Stop()
	if cerr := s.transport.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
