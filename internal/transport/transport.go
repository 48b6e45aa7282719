// Package transport carries the wire envelopes a protocol.Handler
// produces and consumes between two peers over a plain TCP connection,
// one JSON envelope per line. It plays the role the teacher's ABCI
// socket server plays for CometBFT: a thin, dependency-free framing
// layer that knows nothing about protocol semantics, only about moving
// frames. luxfi-threshold/pkg/protocol.Handler's Listen()/Accept()
// shape is what the Peer.Run loop below drains into and reads out of.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/peilunnn/mentalpoker/internal/obslog"
	"github.com/peilunnn/mentalpoker/internal/protocol"
)

// Peer moves frames between the local Handler and a remote peer over
// conn until either side closes the connection or the Handler
// terminates.
type Peer struct {
	conn net.Conn
	h    protocol.Handler
}

// NewPeer wraps an already-established connection.
func NewPeer(conn net.Conn, h protocol.Handler) *Peer {
	return &Peer{conn: conn, h: h}
}

// Dial connects to addr and wraps the resulting connection.
func Dial(ctx context.Context, addr string, h protocol.Handler) (*Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewPeer(conn, h), nil
}

// Listen accepts a single inbound connection on addr and wraps it. A
// mental-poker session is exactly two peers, so there is no accept
// loop: the listener is closed as soon as one connection arrives.
func Listen(ctx context.Context, addr string, h protocol.Handler) (*Peer, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept on %s: %w", addr, err)
	}
	return NewPeer(conn, h), nil
}

// Run drains the Handler's outgoing frames onto the wire and feeds
// incoming lines back into the Handler, until the Handler's Listen
// channel closes (the machine reached a terminal state) or the
// connection breaks. It blocks until one of those happens.
func (p *Peer) Run() error {
	errCh := make(chan error, 2)

	go func() {
		w := bufio.NewWriter(p.conn)
		for frame := range p.h.Listen() {
			if _, err := w.Write(frame); err != nil {
				errCh <- fmt.Errorf("transport: write frame: %w", err)
				return
			}
			if err := w.WriteByte('\n'); err != nil {
				errCh <- fmt.Errorf("transport: write delimiter: %w", err)
				return
			}
			if err := w.Flush(); err != nil {
				errCh <- fmt.Errorf("transport: flush: %w", err)
				return
			}
		}
		errCh <- nil
	}()

	go func() {
		s := bufio.NewScanner(p.conn)
		s.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for s.Scan() {
			line := s.Bytes()
			if len(line) == 0 {
				continue
			}
			frame := make([]byte, len(line))
			copy(frame, line)
			p.h.Accept(frame)
		}
		if err := s.Err(); err != nil {
			errCh <- fmt.Errorf("transport: read frame: %w", err)
			return
		}
		errCh <- nil
	}()

	err := <-errCh
	if err != nil {
		obslog.ErrorEvent("transport error", err, nil)
		p.h.Stop()
	}
	return err
}

// Close releases the underlying connection. Safe to call after Run
// returns, or concurrently to abort an in-flight Run.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// SetDeadline sets the underlying connection's read and write deadline
// to d from now.
func (p *Peer) SetDeadline(d time.Duration) error {
	return p.conn.SetDeadline(time.Now().Add(d))
}
