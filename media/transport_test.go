// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"sync"
	"time"
)

// pipeTransport is an in-memory Transport used by the test suite in place
// of a real UDP socket, in the spirit of the teacher's io.Pipe-backed fake
// sessions.
type pipeTransport struct {
	out  chan []byte
	in   chan []byte
	done chan struct{}

	readTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// newPipeTransportPair returns two Transports wired to each other: a's
// sends arrive at b's receives and vice versa.
func newPipeTransportPair() (a, b *pipeTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &pipeTransport{out: ab, in: ba, done: make(chan struct{}), readTimeout: 50 * time.Millisecond}
	b = &pipeTransport{out: ba, in: ab, done: make(chan struct{}), readTimeout: 50 * time.Millisecond}
	return a, b
}

func (p *pipeTransport) Send(b []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrSocketClosed
	}
	cp := append([]byte(nil), b...)
	select {
	case p.out <- cp:
		return nil
	default:
		return nil // peer not draining; drop like a real UDP socket would under pressure
	}
}

func (p *pipeTransport) Recv(b []byte) (int, error) {
	select {
	case data := <-p.in:
		return copy(b, data), nil
	case <-p.done:
		return 0, ErrSocketClosed
	case <-time.After(p.readTimeout):
		return 0, ErrSocketTimeout
	}
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}
