// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/rtcp"
)

// RTCP handler lifecycle states (§4.6). idle is pre-StartUp; running sends
// periodic compound reports; draining is entered by Shutdown while it sends
// the final report and BYE; closed follows right after, and the goroutines
// are then stopped.
const (
	RTCPStateIdle     = "idle"
	RTCPStateRunning  = "running"
	RTCPStateDraining = "draining"
	RTCPStateClosed   = "closed"
)

func newRTCPFSM() *fsm.FSM {
	return fsm.NewFSM(
		RTCPStateIdle,
		fsm.Events{
			{Name: "start", Src: []string{RTCPStateIdle}, Dst: RTCPStateRunning},
			{Name: "drain", Src: []string{RTCPStateRunning}, Dst: RTCPStateDraining},
			{Name: "close", Src: []string{RTCPStateRunning, RTCPStateDraining, RTCPStateIdle}, Dst: RTCPStateClosed},
		}, nil,
	)
}

// ReportInterval is the session's fixed RTCP reporting period. §1's
// non-goals exclude adaptive/bandwidth-scaled intervals: it is always 5s.
const ReportInterval = 5 * time.Second

// StaleRemoteTimeout is how long a remote may go unseen before it is
// considered gone and removed, absent an explicit BYE (§4.6).
const StaleRemoteTimeout = 60 * time.Second

// RTCPHandler owns the periodic sender/receiver report cycle, SDES/BYE
// construction and the stale-remote sweep (C6).
type RTCPHandler struct {
	db        *ParticipantDB
	transport Transport
	cname     string
	tool      string
	config    ConfigProvider

	// ShutdownOnLastRemote closes the handler once the last remote
	// participant leaves, per §9's resolution of that open question.
	// Defaults to true.
	ShutdownOnLastRemote bool

	machine   *fsm.FSM
	mu        sync.Mutex
	hadRemote bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Done returns a channel closed once the handler's run context is
// cancelled, either by Shutdown or by ShutdownOnLastRemote firing.
func (h *RTCPHandler) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runCtx == nil {
		return nil
	}
	return h.runCtx.Done()
}

// OnRemoteAdded implements ParticipantListener: it records that the session
// has had at least one remote, so ShutdownOnLastRemote does not fire before
// anyone has joined.
func (h *RTCPHandler) OnRemoteAdded(ssrc uint32) {
	h.mu.Lock()
	h.hadRemote = true
	h.mu.Unlock()
}

// OnRemoteRemoved implements ParticipantListener.
func (h *RTCPHandler) OnRemoteRemoved(ssrc uint32) {
	h.maybeShutdownOnEmpty()
}

// NewRTCPHandler creates a handler for db's session. cname is generated
// from a UUID when empty, matching the CNAME-stability requirement of
// RFC 3550 section 6.5.1.
func NewRTCPHandler(db *ParticipantDB, transport Transport, cname, tool string, config ConfigProvider) *RTCPHandler {
	if cname == "" {
		cname = uuid.NewString()
	}
	if config == nil {
		config = EnvConfig{}
	}
	return &RTCPHandler{
		db:                   db,
		transport:            transport,
		cname:                cname,
		tool:                 tool,
		config:               config,
		ShutdownOnLastRemote: true,
		machine:              newRTCPFSM(),
	}
}

// StartUp transitions idle -> running and launches the periodic report
// loop and inbound RTCP processing goroutine.
func (h *RTCPHandler) StartUp(ctx context.Context, inbound <-chan []byte) error {
	h.mu.Lock()
	if err := h.machine.Event(ctx, "start"); err != nil {
		h.mu.Unlock()
		return err
	}
	h.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.runCtx = runCtx
	h.cancel = cancel
	h.mu.Unlock()

	h.db.RegisterListener(h)

	h.wg.Add(2)
	go h.reportLoop(runCtx)
	go h.inboundLoop(runCtx, inbound)

	return nil
}

// Shutdown sends a final BYE, transitions to draining then closed, and
// waits for both goroutines to return.
func (h *RTCPHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	_ = h.machine.Event(ctx, "drain")
	h.mu.Unlock()

	self := h.db.Self()
	bye := BuildBye("session ended", self.SSRC)
	if b, err := BuildCompoundRTCP([]rtcp.Packet{h.buildSelfReport(), bye}); err == nil {
		_ = h.transport.Send(b)
	}

	h.mu.Lock()
	_ = h.machine.Event(ctx, "close")
	h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.db.UnregisterListener(h)
	return nil
}

func (h *RTCPHandler) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepStaleRemotes(ctx)
			h.sendCompoundReport()
		}
	}
}

func (h *RTCPHandler) inboundLoop(ctx context.Context, inbound <-chan []byte) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-inbound:
			if !ok {
				return
			}
			h.handleInbound(b)
		}
	}
}

// updateRTTFromReports scans a reporter's reception report blocks for one
// describing self, and derives a round-trip estimate from its LSR/DLSR
// (§5 "RTT estimation"), grounded on the teacher's calcRTT.
func (h *RTCPHandler) updateRTTFromReports(reporterSSRC uint32, reports []rtcp.ReceptionReport, now time.Time) {
	self := h.db.Self()
	for _, r := range reports {
		if r.SSRC != self.SSRC || r.LastSenderReport == 0 {
			continue
		}
		rtt, skewed := CalcRTT(now, r.LastSenderReport, r.Delay)
		if skewed {
			continue
		}
		h.db.WithRemote(reporterSSRC, func(rec *ParticipantRecord) {
			rec.RTT = rtt
		})
	}
}

func (h *RTCPHandler) handleInbound(b []byte) {
	packets, err := ParseCompoundRTCP(b)
	if err != nil {
		Logger.Debug().Err(err).Msg("dropping malformed compound rtcp")
		return
	}

	now := time.Now()
	for _, p := range packets {
		switch pkt := p.(type) {
		case *rtcp.SenderReport:
			h.db.TouchLastSeen(pkt.SSRC, now)
			h.db.WithRemote(pkt.SSRC, func(rec *ParticipantRecord) {
				if rec.RTCPData == nil {
					rec.RTCPData = &RTCPState{SDESItems: map[uint8]string{}}
				}
				rec.RTCPData.LastSRTimestamp = now
			})
			h.updateRTTFromReports(pkt.SSRC, pkt.Reports, now)

		case *rtcp.SourceDescription:
			for _, chunk := range pkt.Chunks {
				h.db.WithRemote(chunk.Source, func(rec *ParticipantRecord) {
					if rec.RTCPData == nil {
						rec.RTCPData = &RTCPState{SDESItems: map[uint8]string{}}
					}
					for _, item := range chunk.Items {
						rec.RTCPData.SDESItems[uint8(item.Type)] = item.Text
					}
				})
			}

		case *rtcp.Goodbye:
			for _, ssrc := range pkt.Sources {
				Logger.Info().Uint32("ssrc", ssrc).Str("reason", pkt.Reason).Msg("received goodbye")
				h.db.Remove(ssrc)
			}

		case *rtcp.ReceiverReport:
			h.db.TouchLastSeen(pkt.SSRC, now)
			h.updateRTTFromReports(pkt.SSRC, pkt.Reports, now)

		default:
			Logger.Debug().Msgf("%v: unhandled rtcp sub-packet %T", ErrUnknownPacketType, pkt)
		}
	}
}

// buildSelfReport builds a SenderReport if self has sent anything this
// session, else a ReceiverReport, per RFC 3550 section 6.4's "a participant
// that has not yet sent issues RR" rule.
func (h *RTCPHandler) buildSelfReport() rtcp.Packet {
	var self ParticipantRecord
	h.db.WithSelf(func(rec *ParticipantRecord) { self = *rec })
	remotes := h.db.GetAllRemote()

	blocks := make([]rtcp.ReceptionReport, 0, len(remotes))
	for _, rec := range remotes {
		var lsr, dlsr uint32
		if rec.RTCPData != nil && !rec.RTCPData.LastSRTimestamp.IsZero() {
			lsr = MiddleNTP(NTPTimestamp(rec.RTCPData.LastSRTimestamp))
			dlsr = DLSRSince(rec.RTCPData.LastSRTimestamp)
		}
		blocks = append(blocks, rtcp.ReceptionReport{
			SSRC:               rec.SSRC,
			FractionLost:       h.db.FractionLost(rec.SSRC),
			TotalLost:          rec.PacketsLost,
			LastSequenceNumber: rec.ExtendedHighestSeq,
			Jitter:             uint32(rec.InterarrivalJitter),
			LastSenderReport:   lsr,
			Delay:              dlsr,
		})
	}

	if self.TotalPackets > 0 {
		return &rtcp.SenderReport{
			SSRC:        self.SSRC,
			NTPTime:     GetCurrentNTPTimestamp(),
			RTPTime:     self.InitialRTPTimestamp,
			PacketCount: self.TotalPackets,
			OctetCount:  self.TotalBytes,
			Reports:     blocks,
		}
	}
	return &rtcp.ReceiverReport{
		SSRC:    self.SSRC,
		Reports: blocks,
	}
}

func (h *RTCPHandler) sendCompoundReport() {
	self := h.db.Self()
	report := h.buildSelfReport()

	optional := map[rtcp.SDESType]string{}
	if h.config.IsSet(ConfigUserEmail) {
		optional[rtcp.SDESEmail] = h.config.Get(ConfigUserEmail, "", "")
	}
	if h.config.IsSet(ConfigUserPhone) {
		optional[rtcp.SDESPhone] = h.config.Get(ConfigUserPhone, "", "")
	}
	if h.config.IsSet(ConfigUserLoc) {
		optional[rtcp.SDESLocation] = h.config.Get(ConfigUserLoc, "", "")
	}
	if h.config.IsSet(ConfigUserNote) {
		optional[rtcp.SDESNote] = h.config.Get(ConfigUserNote, "", "")
	}
	sdes := BuildSDES(self.SSRC, h.cname, h.tool, optional)

	b, err := BuildCompoundRTCP([]rtcp.Packet{report, sdes})
	if err != nil {
		Logger.Warn().Err(err).Msg("failed to build compound rtcp")
		return
	}
	if err := h.transport.Send(b); err != nil {
		Logger.Warn().Err(err).Msg("failed to send rtcp report")
	}
}

func (h *RTCPHandler) sweepStaleRemotes(ctx context.Context) {
	for _, ssrc := range h.db.StaleRemotes(time.Now(), StaleRemoteTimeout) {
		h.db.Remove(ssrc)
	}
}

// maybeShutdownOnEmpty cancels the run context once the session has seen at
// least one remote and now has none, when ShutdownOnLastRemote is set.
func (h *RTCPHandler) maybeShutdownOnEmpty() {
	h.mu.Lock()
	hadRemote := h.hadRemote
	h.mu.Unlock()

	if !h.ShutdownOnLastRemote || !hadRemote {
		return
	}
	if len(h.db.GetAllRemote()) > 0 {
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
}
