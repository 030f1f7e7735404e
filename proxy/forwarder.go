// Package proxy relays PostgreSQL wire traffic between a client and a
// real server while a fault rule engine decides, message by message,
// whether to forward, hold, drop, mangle or kill. Messages matching no
// rule pass through byte-identical; the proxy is invisible until a rule
// fires.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/matgreaves/run"

	"github.com/matgreaves/pgjinx/fault"
	"github.com/matgreaves/pgjinx/spec"
)

// Forwarder accepts client connections on one address and proxies each
// to the upstream server as an independent connection pair. Configure
// the exported fields before calling Runner; they must not change once
// traffic flows.
type Forwarder struct {
	// ListenAddr is the address to listen on, e.g. "127.0.0.1:0".
	// Ignored when Listener is set.
	ListenAddr string

	// Target is the upstream PostgreSQL server.
	Target spec.Endpoint

	// Engine decides the fate of every relayed message. A nil engine
	// forwards everything untouched.
	Engine *fault.Engine

	// Emit publishes proxy events; nil discards them.
	Emit func(Event)

	// Idle, when set, is notified as connection pairs open and close
	// so a quiet proxy can shut itself down.
	Idle *IdleTimer

	// MaxMessageLen caps the declared length of tagged frames. Zero
	// means pgwire.DefaultMaxMessageLength.
	MaxMessageLen uint32

	// MaxStartupLen caps the declared length of startup frames. Zero
	// means pgwire.MaxStartupPacketLength.
	MaxStartupLen uint32

	// DialTimeout bounds the upstream dial per connection. Zero means
	// 5 seconds.
	DialTimeout time.Duration

	// Listener is a pre-opened listener; avoids TOCTOU race when set.
	Listener net.Listener

	connSeq atomic.Int64
}

// Runner returns a run.Runner that listens and proxies until its
// context is cancelled.
func (f *Forwarder) Runner() run.Runner {
	return run.Func(f.serve)
}

func (f *Forwarder) serve(ctx context.Context) error {
	ln, err := f.getListener()
	if err != nil {
		return fmt.Errorf("proxy: listen %s: %w", f.ListenAddr, err)
	}

	f.emit(Event{Type: EventProxyReady, Addr: ln.Addr().String()})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proxy: accept: %w", err)
		}
		go f.handleConn(ctx, conn)
	}
}

// getListener returns the pre-opened listener if set, otherwise opens a
// new one.
func (f *Forwarder) getListener() (net.Listener, error) {
	if f.Listener != nil {
		return f.Listener, nil
	}
	return net.Listen("tcp", f.ListenAddr)
}

func (f *Forwarder) handleConn(ctx context.Context, client net.Conn) {
	id := f.connSeq.Add(1)
	start := time.Now()

	f.Idle.SessionOpened()
	defer f.Idle.SessionClosed()

	f.emit(Event{Type: EventConnOpened, Conn: id, Addr: client.RemoteAddr().String()})

	timeout := f.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	server, err := net.DialTimeout("tcp", f.Target.Addr(), timeout)
	if err != nil {
		// The client socket must not linger half-open against a dead
		// upstream.
		client.Close()
		f.emit(Event{
			Type:       EventConnDialFailed,
			Conn:       id,
			Addr:       f.Target.Addr(),
			Error:      err.Error(),
			DurationMs: msSince(start),
		})
		return
	}

	s := &session{
		f:      f,
		id:     id,
		client: client,
		server: server,
		start:  start,
		closed: make(chan struct{}),
	}
	s.run(ctx)
}

func (f *Forwarder) emit(e Event) {
	if f.Emit != nil {
		f.Emit(e)
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
