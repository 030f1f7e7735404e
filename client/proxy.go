package pgjinx

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matgreaves/pgjinx/connect"
	"github.com/matgreaves/pgjinx/proxy"
)

// Proxy is the running fault proxy returned by Up. Point the code under
// test at Endpoint (or use DSN, Pool or DB) and its traffic flows
// through the fault rules.
type Proxy struct {
	// Endpoint is the address the proxy listens on.
	Endpoint Endpoint

	// Log is the live event log: everything the proxy observed and
	// every fault it injected, in order.
	Log *EventLog

	// T is a wrapped testing.TB that automatically captures assertion
	// failures (Fatal, Fatalf, Error, Errorf) as test.note events in
	// the proxy's event log. Pass it to assertion libraries (is,
	// testify, require, etc.) so failures appear in the event timeline
	// alongside the faults around them. File:line reporting is
	// preserved.
	T testing.TB

	t testing.TB
}

// DSN returns a connection string that routes through the proxy.
func (p *Proxy) DSN(opts Options) string {
	return connect.DSN(p.Endpoint, opts)
}

// Pool opens a pgx connection pool through the proxy.
func (p *Proxy) Pool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	return connect.Pool(ctx, p.Endpoint, opts)
}

// DB opens a database/sql handle through the proxy.
func (p *Proxy) DB(opts Options) (*sql.DB, error) {
	return connect.DB(p.Endpoint, opts)
}

// ExpectEvent blocks until the proxy publishes an event of the given
// type, starting from the beginning of the log, and returns it. Fails
// the test if none arrives within five seconds.
func (p *Proxy) ExpectEvent(typ EventType) Event {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := p.Log.WaitFor(ctx, func(ev Event) bool { return ev.Type == typ })
	if err != nil {
		p.t.Fatalf("pgjinx: no %s event within 5s", typ)
	}
	return ev
}

// Matched reports how many relayed messages the named rule has matched
// so far.
func (p *Proxy) Matched(rule string) int {
	n := 0
	for _, ev := range p.Log.Events() {
		if ev.Type == proxy.EventMessage && ev.Rule == rule {
			n++
		}
	}
	return n
}

// Note records a test annotation in the event log, stamped with the
// caller's file:line. Notes land on the same timeline as the faults
// around them, which makes post-mortem reading of a failed run easier.
func (p *Proxy) Note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(1); ok {
		msg = fmt.Sprintf("%s:%d: %s", filepath.Base(file), line, msg)
	}
	p.Log.Publish(Event{Type: proxy.EventTestNote, Error: msg})
}
