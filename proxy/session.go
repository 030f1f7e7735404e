package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matgreaves/pgjinx/fault"
	"github.com/matgreaves/pgjinx/pgwire"
)

// errTerminated unwinds a pipeline after a Terminate action killed the
// pair. It never escapes the session.
var errTerminated = errors.New("pair terminated by rule")

// session is one proxied connection pair. Two goroutines relay decoded
// messages in opposite directions; the phase word below is the only
// state they share.
type session struct {
	f      *Forwarder
	id     int64
	client net.Conn
	server net.Conn
	start  time.Time

	// phase holds a pgwire.Phase and only moves forward: startup →
	// authenticating when the client's startup packet arrives,
	// authenticating → ready when the server reports auth success.
	// The client pipeline also reads it to pick the framing rule
	// (untagged until the startup packet has been consumed).
	phase atomic.Uint32

	bytesIn  atomic.Int64 // client → server
	bytesOut atomic.Int64 // server → client

	// closed is closed together with the conns so a pipeline sleeping
	// out a Delay wakes as soon as the pair dies.
	closed    chan struct{}
	closeBoth sync.Once
}

func (s *session) run(ctx context.Context) {
	// Tear the pair down if the proxy shuts down mid-session.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-done:
		}
	}()
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(2)

	// client → server: framing follows the session phase.
	go func() {
		defer wg.Done()
		s.relayClient(ctx)
	}()

	// server → client: tagged frames throughout.
	go func() {
		defer wg.Done()
		s.relayServer(ctx)
	}()

	wg.Wait()
	s.close()

	s.f.emit(Event{
		Type:       EventConnClosed,
		Conn:       s.id,
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
		DurationMs: msSince(s.start),
	})
}

// close closes both conns. Safe to call from any goroutine, any number
// of times.
func (s *session) close() {
	s.closeBoth.Do(func() {
		s.client.Close()
		s.server.Close()
		close(s.closed)
	})
}

func (s *session) relayClient(ctx context.Context) {
	for {
		var (
			msg pgwire.Message
			err error
		)
		if s.currentPhase() == pgwire.PhaseStartup {
			msg, err = pgwire.ReadStartup(s.client, pgwire.FromClient, s.f.MaxStartupLen)
		} else {
			msg, err = pgwire.ReadMessage(s.client, pgwire.FromClient, s.f.MaxMessageLen)
		}
		if err != nil {
			s.finishRead(pgwire.FromClient, s.server, err)
			return
		}

		if s.handleMessage(ctx, msg, s.server) != nil {
			return
		}
	}
}

func (s *session) relayServer(ctx context.Context) {
	for {
		msg, err := pgwire.ReadMessage(s.server, pgwire.FromServer, s.f.MaxMessageLen)
		if err != nil {
			s.finishRead(pgwire.FromServer, s.client, err)
			return
		}

		if s.handleMessage(ctx, msg, s.client) != nil {
			return
		}
	}
}

// handleMessage runs one decoded message through the session state
// machine and the rule engine, then applies the verdict. A non-nil
// return stops the pipeline.
func (s *session) handleMessage(ctx context.Context, msg pgwire.Message, dst net.Conn) error {
	s.observe(msg)
	phase := s.currentPhase()

	action, rule := s.f.Engine.Evaluate(msg, phase)
	if rule != "" {
		s.f.emit(Event{
			Type:      EventMessage,
			Conn:      s.id,
			Direction: msg.Dir.String(),
			Phase:     phase.String(),
			Message:   msg.Name(),
			Rule:      rule,
			Action:    action.Kind.String(),
		})
	}

	switch action.Kind {
	case fault.Drop:
		return nil

	case fault.Delay:
		// Sleeping here is the point: everything behind this message
		// in the same direction queues up, preserving order, while
		// the opposite direction keeps flowing.
		timer := time.NewTimer(action.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.closed:
			timer.Stop()
			return errTerminated
		}

	case fault.Corrupt:
		out, err := action.Transform(msg.Payload)
		if err != nil {
			// Fail safe: a transform's error state is never forwarded
			// as if it were data. The message is dropped and the
			// connection continues.
			s.f.emit(Event{
				Type:      EventTransformFailed,
				Conn:      s.id,
				Direction: msg.Dir.String(),
				Message:   msg.Name(),
				Rule:      rule,
				Error:     err.Error(),
			})
			return nil
		}
		msg = msg.WithPayload(out)

	case fault.Terminate:
		s.f.emit(Event{
			Type:      EventConnTerminated,
			Conn:      s.id,
			Direction: msg.Dir.String(),
			Message:   msg.Name(),
			Rule:      rule,
		})
		s.close()
		return errTerminated
	}

	if err := s.deliver(msg, dst); err != nil {
		s.close()
		return err
	}
	return nil
}

// deliver forwards one surviving message, counting its wire bytes. SSL
// and GSS encryption requests are answered by the proxy itself with 'N'
// (not supported): forwarding them would elicit a single unframed
// status byte from the server and desynchronize both codecs.
func (s *session) deliver(msg pgwire.Message, dst net.Conn) error {
	if msg.Dir == pgwire.FromClient && (pgwire.IsSSLRequest(msg) || pgwire.IsGSSENCRequest(msg)) {
		if _, err := s.client.Write([]byte{'N'}); err != nil {
			return err
		}
		s.bytesOut.Add(1)
		return nil
	}

	if err := pgwire.WriteMessage(dst, msg); err != nil {
		return err
	}
	if msg.Dir == pgwire.FromClient {
		s.bytesIn.Add(int64(msg.WireLen))
	} else {
		s.bytesOut.Add(int64(msg.WireLen))
	}
	return nil
}

// observe advances the session phase on transition messages. Phase
// moves before the rule engine runs, so a transition message is
// evaluated under the phase it produces.
func (s *session) observe(msg pgwire.Message) {
	switch {
	case msg.Dir == pgwire.FromClient && msg.Tag == 0 && pgwire.IsStartupRequest(msg):
		s.advance(pgwire.PhaseAuthenticating)
		ev := Event{Type: EventConnStartup, Conn: s.id}
		if params, err := pgwire.StartupParams(msg.Payload); err == nil {
			ev.User = params["user"]
			ev.Database = params["database"]
		}
		s.f.emit(ev)

	case msg.Dir == pgwire.FromServer && msg.Tag == pgwire.MsgAuthenticationRequest:
		if code, err := pgwire.AuthResult(msg); err == nil && code == pgwire.AuthOk {
			s.advance(pgwire.PhaseReady)
			s.f.emit(Event{Type: EventConnReady, Conn: s.id})
		}
	}
}

func (s *session) currentPhase() pgwire.Phase {
	return pgwire.Phase(s.phase.Load())
}

// advance moves the phase forward, never backward.
func (s *session) advance(to pgwire.Phase) {
	for {
		cur := s.phase.Load()
		if uint32(to) <= cur {
			return
		}
		if s.phase.CompareAndSwap(cur, uint32(to)) {
			return
		}
	}
}

// finishRead ends a pipeline after a failed read. A clean EOF
// half-closes the peer so replies still in flight can drain; a
// malformed frame kills the pair outright, since guessing frame
// boundaries would corrupt every later message.
func (s *session) finishRead(dir pgwire.Direction, dst net.Conn, err error) {
	switch {
	case errors.Is(err, net.ErrClosed):
		// Pair already torn down elsewhere.

	case errors.Is(err, io.EOF):
		if tc, ok := dst.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		s.f.emit(Event{Type: EventConnHalfClosed, Conn: s.id, Direction: dir.String()})

	case errors.Is(err, pgwire.ErrMalformedFrame):
		s.f.emit(Event{
			Type:      EventConnMalformed,
			Conn:      s.id,
			Direction: dir.String(),
			Error:     err.Error(),
		})
		s.close()

	default:
		// Mid-frame peer failure. Nothing to salvage.
		s.close()
	}
}
