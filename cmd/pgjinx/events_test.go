package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matgreaves/pgjinx/proxy"
)

func TestRenderEvent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := proxy.Event{
		Type:      proxy.EventMessage,
		Conn:      3,
		Message:   "Query",
		Direction: "client",
		Action:    "delay",
		Rule:      "slow_selects",
		Timestamp: t0.Add(1500 * time.Millisecond),
	}

	line := renderEvent(t0, ev)
	for _, want := range []string{"1.500s", "conn.message", "#3", "Query from client: delay (rule slow_selects)"} {
		if !strings.Contains(line, want) {
			t.Errorf("renderEvent line %q missing %q", line, want)
		}
	}
}

func TestRenderEventNoConn(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := proxy.Event{
		Type:      proxy.EventProxyReady,
		Addr:      "127.0.0.1:39018",
		Timestamp: t0,
	}

	line := renderEvent(t0, ev)
	if strings.Contains(line, "#") {
		t.Errorf("proxy-level event should have no connection marker: %q", line)
	}
	if !strings.Contains(line, "listening on 127.0.0.1:39018") {
		t.Errorf("renderEvent line %q missing listen detail", line)
	}
}

func TestEventDetail(t *testing.T) {
	cases := []struct {
		ev   proxy.Event
		want string
	}{
		{proxy.Event{Type: proxy.EventProxyReady, Addr: "127.0.0.1:39018"},
			"listening on 127.0.0.1:39018"},
		{proxy.Event{Type: proxy.EventConnOpened, Addr: "127.0.0.1:50122"},
			"client 127.0.0.1:50122"},
		{proxy.Event{Type: proxy.EventConnStartup, User: "app", Database: "orders"},
			"user=app database=orders"},
		{proxy.Event{Type: proxy.EventConnDialFailed, Addr: "127.0.0.1:5432", Error: "connection refused"},
			"upstream 127.0.0.1:5432: connection refused"},
		{proxy.Event{Type: proxy.EventMessage, Message: "Query", Direction: "client", Action: "drop", Rule: "lose_commits"},
			"Query from client: drop (rule lose_commits)"},
		{proxy.Event{Type: proxy.EventTransformFailed, Message: "DataRow", Direction: "server", Rule: "mangle", Error: "replace: substring not found"},
			"DataRow from server (rule mangle): replace: substring not found"},
		{proxy.Event{Type: proxy.EventConnTerminated, Message: "Query", Direction: "client", Rule: "kill_update"},
			"on Query from client (rule kill_update)"},
		{proxy.Event{Type: proxy.EventConnHalfClosed, Direction: "client"},
			"client side closed"},
		{proxy.Event{Type: proxy.EventConnMalformed, Direction: "server", Error: "frame length 2 below minimum 4"},
			"from server: frame length 2 below minimum 4"},
		{proxy.Event{Type: proxy.EventConnClosed, BytesIn: 2048, BytesOut: 512, DurationMs: 12.3},
			"2.0KB↑ 512B↓ 12.3ms"},
		{proxy.Event{Type: proxy.EventProxyIdle}, ""},
	}

	for _, tc := range cases {
		if got := eventDetail(tc.ev); got != tc.want {
			t.Errorf("eventDetail(%s) = %q, want %q", tc.ev.Type, got, tc.want)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	if got := formatOffset(1500 * time.Millisecond); got != "1.500s" {
		t.Errorf("formatOffset(1.5s) = %q, want 1.500s", got)
	}
	if got := formatOffset(0); got != "0.000s" {
		t.Errorf("formatOffset(0) = %q, want 0.000s", got)
	}
}

func TestFormatLatency(t *testing.T) {
	cases := []struct {
		ms   float64
		want string
	}{
		{0.5, "500µs"},
		{12.3, "12.3ms"},
		{999.9, "999.9ms"},
		{2500, "2.50s"},
	}
	for _, tc := range cases {
		if got := formatLatency(tc.ms); got != tc.want {
			t.Errorf("formatLatency(%v) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		b    int64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{2048, "2.0KB"},
		{5 * 1024 * 1024, "5.0MB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.b); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.b, got, tc.want)
		}
	}
}

func TestStripRunPrefixes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"run.Group[proxy]: accept: use of closed network connection",
			"accept: use of closed network connection"},
		{"sequence [1:3]: run.Group[events]: encode event: broken pipe",
			"encode event: broken pipe"},
		{"listen 127.0.0.1:1: permission denied",
			"listen 127.0.0.1:1: permission denied"},
	}
	for _, tc := range cases {
		if got := stripRunPrefixes(tc.in); got != tc.want {
			t.Errorf("stripRunPrefixes(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteAddrFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.addr")
	if err := writeAddrFile(path, "127.0.0.1:39018"); err != nil {
		t.Fatalf("writeAddrFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "127.0.0.1:39018" {
		t.Errorf("addr file = %q, want 127.0.0.1:39018", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("tmp file left behind after rename: %v", err)
	}

	// Overwrites an existing file in place.
	if err := writeAddrFile(path, "127.0.0.1:40000"); err != nil {
		t.Fatalf("writeAddrFile overwrite: %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "127.0.0.1:40000" {
		t.Errorf("addr file = %q, want 127.0.0.1:40000", got)
	}
}
