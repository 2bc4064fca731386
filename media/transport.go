// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"errors"
	"net"
	"time"
)

// Transport is the external UDP transport boundary (§6): the session core
// only ever sees opaque byte buffers, never raw sockets. RTP and RTCP share
// one Transport; IsRTCP demultiplexes on read.
type Transport interface {
	Send(b []byte) error
	Recv(b []byte) (n int, err error)
	Close() error
}

// UDPTransport is a Transport backed by a single UDP socket, adapted from
// the one-socket-per-stream pattern the RTCP-mux profile collapses into one
// (§6). Reads use a fixed timeout so the owning goroutine can observe
// shutdown without blocking forever.
type UDPTransport struct {
	conn        *net.UDPConn
	raddr       *net.UDPAddr
	readTimeout time.Duration
}

// DefaultReadTimeout bounds how long Recv blocks before returning
// ErrSocketTimeout, letting listener/RTCP goroutines poll their shutdown
// flag (§6).
const DefaultReadTimeout = 1000 * time.Millisecond

// NewUDPTransport opens a UDP socket bound to laddr and connected to raddr.
func NewUDPTransport(laddr, raddr *net.UDPAddr) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{
		conn:        conn,
		raddr:       raddr,
		readTimeout: DefaultReadTimeout,
	}, nil
}

// SetReadTimeout overrides DefaultReadTimeout.
func (t *UDPTransport) SetReadTimeout(d time.Duration) {
	t.readTimeout = d
}

// LocalAddr returns the bound local address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) Send(b []byte) error {
	_, err := t.conn.WriteToUDP(b, t.raddr)
	return err
}

// Recv reads one datagram into b. It returns ErrSocketTimeout on read
// deadline expiry (not a failure: callers loop on it) and ErrSocketClosed
// once the underlying socket has been closed.
func (t *UDPTransport) Recv(b []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, err
	}

	n, _, err := t.conn.ReadFromUDP(b)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrSocketTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, ErrSocketClosed
		}
		return 0, err
	}
	return n, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
