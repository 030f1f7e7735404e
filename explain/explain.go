// Package explain summarizes pgjinx event logs: which rules fired, what
// each connection went through, and which faults actually bit. It is
// imported by client/ (for inline t.Log output when a test fails) and by
// cmd/pgjinx (the -explain flag).
package explain

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/matgreaves/pgjinx/proxy"
)

// Report is the structured analysis of one proxy run.
type Report struct {
	Addr        string       `json:"addr,omitempty"`
	Matched     int          `json:"matched"`
	Connections []Connection `json:"connections,omitempty"`
	Rules       []RuleHits   `json:"rules,omitempty"`
	Faults      []Fault      `json:"faults,omitempty"`
	Assertions  []Assertion  `json:"assertions,omitempty"`
	Idle        bool         `json:"idle,omitempty"`
}

// Connection is the condensed history of one proxied pair.
type Connection struct {
	ID         int64   `json:"id"`
	User       string  `json:"user,omitempty"`
	Database   string  `json:"database,omitempty"`
	Outcome    string  `json:"outcome"` // open, closed, terminated, malformed, dial_failed
	Matched    int     `json:"matched"`
	BytesIn    int64   `json:"bytes_in"`
	BytesOut   int64   `json:"bytes_out"`
	DurationMs float64 `json:"duration_ms"`
}

// RuleHits counts how often one rule decided a message's fate. Rules
// appear in the order they first fired.
type RuleHits struct {
	Rule   string `json:"rule"`
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Fault is one disruptive outcome: an injected termination, a failed
// upstream dial, a malformed frame or a failed transform.
type Fault struct {
	Conn      int64  `json:"conn,omitempty"`
	Kind      string `json:"kind"` // terminated, dial_failed, malformed, transform_failed
	Rule      string `json:"rule,omitempty"`
	Message   string `json:"message,omitempty"`
	Direction string `json:"direction,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Assertion is a parsed test.note event.
type Assertion struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// assertionRe matches "file.go:42: message" prefixes in test.note errors.
var assertionRe = regexp.MustCompile(`^(.+\.go):(\d+):\s*(.*)$`)

// Analyze builds a Report from an in-memory event slice, typically
// EventLog.Events().
func Analyze(events []proxy.Event) *Report {
	rep := &Report{}

	connIndex := make(map[int64]int)
	conn := func(id int64) *Connection {
		if i, ok := connIndex[id]; ok {
			return &rep.Connections[i]
		}
		connIndex[id] = len(rep.Connections)
		rep.Connections = append(rep.Connections, Connection{ID: id, Outcome: "open"})
		return &rep.Connections[len(rep.Connections)-1]
	}

	ruleIndex := make(map[string]int)

	for _, ev := range events {
		switch ev.Type {
		case proxy.EventProxyReady:
			rep.Addr = ev.Addr

		case proxy.EventProxyIdle:
			rep.Idle = true

		case proxy.EventConnOpened:
			conn(ev.Conn)

		case proxy.EventConnStartup:
			c := conn(ev.Conn)
			c.User = ev.User
			c.Database = ev.Database

		case proxy.EventMessage:
			conn(ev.Conn).Matched++
			rep.Matched++
			if i, ok := ruleIndex[ev.Rule]; ok {
				rep.Rules[i].Count++
			} else {
				ruleIndex[ev.Rule] = len(rep.Rules)
				rep.Rules = append(rep.Rules, RuleHits{
					Rule:   ev.Rule,
					Action: ev.Action,
					Count:  1,
				})
			}

		case proxy.EventConnDialFailed:
			conn(ev.Conn).Outcome = "dial_failed"
			rep.Faults = append(rep.Faults, Fault{
				Conn:   ev.Conn,
				Kind:   "dial_failed",
				Detail: ev.Error,
			})

		case proxy.EventConnTerminated:
			conn(ev.Conn).Outcome = "terminated"
			rep.Faults = append(rep.Faults, Fault{
				Conn:      ev.Conn,
				Kind:      "terminated",
				Rule:      ev.Rule,
				Message:   ev.Message,
				Direction: ev.Direction,
			})

		case proxy.EventConnMalformed:
			conn(ev.Conn).Outcome = "malformed"
			rep.Faults = append(rep.Faults, Fault{
				Conn:      ev.Conn,
				Kind:      "malformed",
				Direction: ev.Direction,
				Detail:    ev.Error,
			})

		case proxy.EventTransformFailed:
			rep.Faults = append(rep.Faults, Fault{
				Conn:      ev.Conn,
				Kind:      "transform_failed",
				Rule:      ev.Rule,
				Message:   ev.Message,
				Direction: ev.Direction,
				Detail:    ev.Error,
			})

		case proxy.EventConnClosed:
			c := conn(ev.Conn)
			c.BytesIn = ev.BytesIn
			c.BytesOut = ev.BytesOut
			c.DurationMs = ev.DurationMs
			// Terminated and malformed pairs also close; keep the
			// event that says why.
			if c.Outcome == "open" {
				c.Outcome = "closed"
			}

		case proxy.EventTestNote:
			rep.Assertions = append(rep.Assertions, parseAssertion(ev.Error))
		}
	}

	return rep
}

// AnalyzeJSONL reads a JSON-lines event stream as written by
// pgjinx -events. Lines that do not parse are skipped.
func AnalyzeJSONL(r io.Reader) (*Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []proxy.Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev proxy.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type == "" {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events in log")
	}

	return Analyze(events), nil
}

// AnalyzeFile opens a JSONL file and runs AnalyzeJSONL.
func AnalyzeFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return AnalyzeJSONL(f)
}

// parseAssertion splits the "file.go:line: " prefix off a test.note
// message when present.
func parseAssertion(msg string) Assertion {
	a := Assertion{Message: msg}
	if m := assertionRe.FindStringSubmatch(msg); m != nil {
		a.File = m[1]
		a.Line, _ = strconv.Atoi(m[2])
		a.Message = m[3]
	}
	return a
}
