// Package pgjinx is the in-process test SDK. Up starts a fault proxy
// in front of an upstream PostgreSQL server inside the test binary,
// tears it down with t.Cleanup, and hands back a Proxy that builds
// connections through the faulty path.
package pgjinx

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/matgreaves/pgjinx/connect"
	"github.com/matgreaves/pgjinx/explain"
	"github.com/matgreaves/pgjinx/fault"
	"github.com/matgreaves/pgjinx/proxy"
	"github.com/matgreaves/pgjinx/spec"
)

// Re-export shared types from spec/, connect/ and proxy/ so users of
// the SDK never need to import those packages directly.
type (
	Endpoint = spec.Endpoint
	Options  = connect.Options

	Scenario = spec.Scenario
	Rule     = spec.Rule
	Match    = spec.Match
	Action   = spec.Action
	Corrupt  = spec.Corrupt
	Replace  = spec.Replace
	Duration = spec.Duration

	Event     = proxy.Event
	EventType = proxy.EventType
	EventLog  = proxy.EventLog
)

// Option configures the behavior of Up.
type Option func(*settings)

type settings struct {
	listenAddr   string
	scenario     *spec.Scenario
	scenarioFile string
	engine       *fault.Engine
	dialTimeout  time.Duration
}

func defaultSettings() settings {
	return settings{
		listenAddr: "127.0.0.1:0",
	}
}

// WithListen sets the address the proxy listens on. Defaults to
// "127.0.0.1:0", an ephemeral port.
func WithListen(addr string) Option {
	return func(s *settings) { s.listenAddr = addr }
}

// WithScenario installs an inline fault scenario. The scenario is
// validated and compiled by Up; an invalid one fails the test.
func WithScenario(scn Scenario) Option {
	return func(s *settings) { s.scenario = &scn }
}

// WithScenarioFile loads a fault scenario from a JSON or YAML file.
func WithScenarioFile(path string) Option {
	return func(s *settings) { s.scenarioFile = path }
}

// WithEngine installs a pre-compiled fault engine. Useful when a rule
// needs a transform that has no scenario-file encoding.
func WithEngine(eng *fault.Engine) Option {
	return func(s *settings) { s.engine = eng }
}

// WithDialTimeout bounds each upstream dial. Defaults to the proxy's
// own default.
func WithDialTimeout(d time.Duration) Option {
	return func(s *settings) { s.dialTimeout = d }
}

// buildEngine resolves the scenario options into a single engine. A nil
// engine means no rules: the proxy forwards everything untouched.
func (s *settings) buildEngine() (*fault.Engine, error) {
	set := 0
	if s.engine != nil {
		set++
	}
	if s.scenario != nil {
		set++
	}
	if s.scenarioFile != "" {
		set++
	}
	if set > 1 {
		return nil, errors.New("WithEngine, WithScenario and WithScenarioFile are mutually exclusive")
	}

	switch {
	case s.engine != nil:
		return s.engine, nil
	case s.scenarioFile != "":
		scn, err := spec.LoadScenario(s.scenarioFile)
		if err != nil {
			return nil, err
		}
		return fault.Compile(scn)
	case s.scenario != nil:
		return fault.Compile(*s.scenario)
	}
	return nil, nil
}

// Up starts a fault proxy in front of the upstream address and registers
// cleanup with t.Cleanup to shut it down when the test finishes. The
// returned Proxy is listening before Up returns.
//
// If the test fails, cleanup logs a condensed report of the faults the
// proxy injected, so the test output explains itself.
//
// If any step fails (bad upstream address, invalid scenario, listen
// failure), Up calls t.Fatal with a descriptive error message.
func Up(t testing.TB, upstream string, opts ...Option) *Proxy {
	t.Helper()

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	target, err := spec.ParseEndpoint(upstream)
	if err != nil {
		t.Fatalf("pgjinx: upstream address: %v", err)
	}

	eng, err := s.buildEngine()
	if err != nil {
		t.Fatalf("pgjinx: %v", err)
	}

	// Pre-open the listener so the proxy is dialable the moment Up
	// returns, without waiting on the serve goroutine.
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		t.Fatalf("pgjinx: listen %s: %v", s.listenAddr, err)
	}

	ep, err := spec.ParseEndpoint(ln.Addr().String())
	if err != nil {
		ln.Close()
		t.Fatalf("pgjinx: listen address %q: %v", ln.Addr(), err)
	}

	log := proxy.NewEventLog()
	fwd := &proxy.Forwarder{
		Target:      target,
		Engine:      eng,
		Emit:        log.Publish,
		DialTimeout: s.dialTimeout,
		Listener:    ln,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Runner().Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("pgjinx: proxy exited: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("pgjinx: proxy did not shut down within 5s")
		}
		if t.Failed() {
			if out := explain.Condensed(explain.Analyze(log.Events())); out != "" {
				t.Log("\n" + out)
			}
		}
	})

	return &Proxy{
		Endpoint: ep,
		Log:      log,
		T:        &jinxTB{TB: t, log: log},
		t:        t,
	}
}
