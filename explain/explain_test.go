package explain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matgreaves/pgjinx/proxy"
)

// faultRun is a synthetic event history: one clean connection, one
// terminated by a rule, one that never reached the upstream.
func faultRun() []proxy.Event {
	return []proxy.Event{
		{Type: proxy.EventProxyReady, Addr: "127.0.0.1:39018"},

		{Type: proxy.EventConnOpened, Conn: 1, Addr: "127.0.0.1:50122"},
		{Type: proxy.EventConnStartup, Conn: 1, User: "alice", Database: "orders"},
		{Type: proxy.EventConnReady, Conn: 1},
		{Type: proxy.EventMessage, Conn: 1, Direction: "client", Message: "Query", Rule: "slow-selects", Action: "delay"},
		{Type: proxy.EventMessage, Conn: 1, Direction: "client", Message: "Query", Rule: "slow-selects", Action: "delay"},
		{Type: proxy.EventConnClosed, Conn: 1, BytesIn: 2048, BytesOut: 51200, DurationMs: 1234},

		{Type: proxy.EventConnOpened, Conn: 2, Addr: "127.0.0.1:50123"},
		{Type: proxy.EventConnStartup, Conn: 2, User: "alice", Database: "orders"},
		{Type: proxy.EventConnReady, Conn: 2},
		{Type: proxy.EventMessage, Conn: 2, Direction: "client", Message: "Query", Rule: "kill-switch", Action: "terminate"},
		{Type: proxy.EventConnTerminated, Conn: 2, Direction: "client", Message: "Query", Rule: "kill-switch"},
		{Type: proxy.EventConnClosed, Conn: 2, BytesIn: 512, BytesOut: 256, DurationMs: 87},

		{Type: proxy.EventConnOpened, Conn: 3, Addr: "127.0.0.1:50124"},
		{Type: proxy.EventConnDialFailed, Conn: 3, Addr: "127.0.0.1:5432", Error: "connection refused"},

		{Type: proxy.EventTestNote, Error: "app_test.go:42: expected 3 rows, got 1"},
	}
}

func TestAnalyze(t *testing.T) {
	r := Analyze(faultRun())

	if r.Addr != "127.0.0.1:39018" {
		t.Errorf("addr = %q", r.Addr)
	}
	if len(r.Connections) != 3 {
		t.Fatalf("got %d connections, want 3", len(r.Connections))
	}
	if r.Matched != 3 {
		t.Errorf("matched = %d, want 3", r.Matched)
	}

	c1 := r.Connections[0]
	if c1.Outcome != "closed" || c1.User != "alice" || c1.Matched != 2 {
		t.Errorf("conn 1 = %+v", c1)
	}
	if c1.BytesIn != 2048 || c1.BytesOut != 51200 {
		t.Errorf("conn 1 bytes = %d↑ %d↓", c1.BytesIn, c1.BytesOut)
	}

	// Termination wins over the closing event that follows it.
	if r.Connections[1].Outcome != "terminated" {
		t.Errorf("conn 2 outcome = %q, want terminated", r.Connections[1].Outcome)
	}
	if r.Connections[2].Outcome != "dial_failed" {
		t.Errorf("conn 3 outcome = %q, want dial_failed", r.Connections[2].Outcome)
	}
}

func TestAnalyzeRuleHits(t *testing.T) {
	r := Analyze(faultRun())

	if len(r.Rules) != 2 {
		t.Fatalf("got %d rules, want 2: %+v", len(r.Rules), r.Rules)
	}
	// First-fired order, counts aggregated.
	if r.Rules[0].Rule != "slow-selects" || r.Rules[0].Count != 2 || r.Rules[0].Action != "delay" {
		t.Errorf("rules[0] = %+v", r.Rules[0])
	}
	if r.Rules[1].Rule != "kill-switch" || r.Rules[1].Count != 1 {
		t.Errorf("rules[1] = %+v", r.Rules[1])
	}
}

func TestAnalyzeFaults(t *testing.T) {
	r := Analyze(faultRun())

	if len(r.Faults) != 2 {
		t.Fatalf("got %d faults, want 2: %+v", len(r.Faults), r.Faults)
	}
	if r.Faults[0].Kind != "terminated" || r.Faults[0].Rule != "kill-switch" {
		t.Errorf("faults[0] = %+v", r.Faults[0])
	}
	if r.Faults[1].Kind != "dial_failed" || !strings.Contains(r.Faults[1].Detail, "refused") {
		t.Errorf("faults[1] = %+v", r.Faults[1])
	}
}

func TestAnalyzeAssertions(t *testing.T) {
	r := Analyze(faultRun())

	if len(r.Assertions) != 1 {
		t.Fatalf("got %d assertions, want 1", len(r.Assertions))
	}
	a := r.Assertions[0]
	if a.File != "app_test.go" || a.Line != 42 {
		t.Errorf("assertion location = %s:%d", a.File, a.Line)
	}
	if a.Message != "expected 3 rows, got 1" {
		t.Errorf("assertion message = %q", a.Message)
	}
}

func TestAnalyzeJSONL(t *testing.T) {
	jsonl := `{"seq":1,"type":"proxy.ready","addr":"127.0.0.1:39018","timestamp":"2026-03-01T10:00:00Z"}
{"seq":2,"type":"conn.opened","conn":1,"addr":"127.0.0.1:50122","timestamp":"2026-03-01T10:00:01Z"}
not json at all
{"seq":3,"type":"conn.message","conn":1,"direction":"client","message":"Query","rule":"slow-selects","action":"delay","timestamp":"2026-03-01T10:00:02Z"}
{"seq":4,"type":"conn.closed","conn":1,"bytes_in":100,"bytes_out":200,"duration_ms":5.5,"timestamp":"2026-03-01T10:00:03Z"}
`

	r, err := AnalyzeJSONL(strings.NewReader(jsonl))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Connections) != 1 {
		t.Fatalf("got %d connections, want 1", len(r.Connections))
	}
	if r.Connections[0].Outcome != "closed" {
		t.Errorf("outcome = %q", r.Connections[0].Outcome)
	}
	if r.Matched != 1 || len(r.Rules) != 1 {
		t.Errorf("matched = %d, rules = %+v", r.Matched, r.Rules)
	}
}

func TestAnalyzeJSONL_Empty(t *testing.T) {
	if _, err := AnalyzeJSONL(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := AnalyzeJSONL(strings.NewReader("garbage\nmore garbage\n")); err == nil {
		t.Fatal("expected error when no line parses")
	}
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, Analyze(faultRun()))
	out := buf.String()

	for _, want := range []string{
		"3 connections",
		"3 matched messages",
		"slow-selects  delay ×2",
		"#1  alice@orders  closed",
		"#2  terminated by rule kill-switch (Query from client)",
		"upstream dial failed: connection refused",
		"app_test.go:42: expected 3 rows, got 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Pretty output missing %q:\n%s", want, out)
		}
	}
}

func TestCondensed(t *testing.T) {
	out := Condensed(Analyze(faultRun()))

	for _, want := range []string{
		"pgjinx: #2  terminated by rule kill-switch",
		"pgjinx: #3  upstream dial failed: connection refused",
		"pgjinx: rule slow-selects  delay ×2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Condensed output missing %q:\n%s", want, out)
		}
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("Condensed output should not end with a newline")
	}
}

func TestCondensed_InvisibleProxyIsSilent(t *testing.T) {
	events := []proxy.Event{
		{Type: proxy.EventProxyReady, Addr: "127.0.0.1:39018"},
		{Type: proxy.EventConnOpened, Conn: 1},
		{Type: proxy.EventConnStartup, Conn: 1, User: "alice", Database: "orders"},
		{Type: proxy.EventConnReady, Conn: 1},
		{Type: proxy.EventConnClosed, Conn: 1, BytesIn: 100, BytesOut: 200},
	}
	if out := Condensed(Analyze(events)); out != "" {
		t.Errorf("expected empty condensed output, got:\n%s", out)
	}
}
