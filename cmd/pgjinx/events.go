package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matgreaves/run"

	"github.com/matgreaves/pgjinx/proxy"
)

// typeColumnWidth fits the longest event type, rule.transform_failed.
const typeColumnWidth = 21

// eventsRunner streams proxy events until cancelled: JSON lines on
// stdout when jsonl is set, human-readable lines on stderr unless
// quiet. With neither output it just parks so the run group stays up.
func eventsRunner(log *proxy.EventLog, jsonl, quiet bool) run.Runner {
	if !jsonl && quiet {
		return run.Idle
	}
	return run.Func(func(ctx context.Context) error {
		enc := json.NewEncoder(os.Stdout)
		var t0 time.Time
		for ev := range log.Subscribe(ctx, 0, nil) {
			if t0.IsZero() {
				t0 = ev.Timestamp
			}
			if jsonl {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("encode event: %w", err)
				}
			}
			if !quiet {
				fmt.Fprintln(os.Stderr, renderEvent(t0, ev))
			}
		}
		return nil
	})
}

// renderEvent formats one event as a human-readable line: a relative
// timestamp, the event type, the connection number and the detail. The
// type column is padded before coloring so ANSI codes don't skew
// alignment.
func renderEvent(t0 time.Time, ev proxy.Event) string {
	ts := dim(formatOffset(ev.Timestamp.Sub(t0)))
	typ := colorEventType(ev.Type, fmt.Sprintf("%-*s", typeColumnWidth, string(ev.Type)))

	line := ts + "  " + typ
	if ev.Conn != 0 {
		line += "  " + colorConn(fmt.Sprintf("#%d", ev.Conn), ev.Conn)
	}
	if detail := eventDetail(ev); detail != "" {
		line += "  " + detail
	}
	return line
}

// eventDetail renders the fields that matter for each event type.
func eventDetail(ev proxy.Event) string {
	var b strings.Builder
	switch ev.Type {
	case proxy.EventProxyReady:
		fmt.Fprintf(&b, "listening on %s", ev.Addr)
	case proxy.EventConnOpened:
		fmt.Fprintf(&b, "client %s", ev.Addr)
	case proxy.EventConnStartup:
		fmt.Fprintf(&b, "user=%s database=%s", ev.User, ev.Database)
	case proxy.EventConnDialFailed:
		fmt.Fprintf(&b, "upstream %s: %s", ev.Addr, ev.Error)
	case proxy.EventMessage:
		fmt.Fprintf(&b, "%s from %s: %s (rule %s)", ev.Message, ev.Direction, ev.Action, ev.Rule)
	case proxy.EventTransformFailed:
		fmt.Fprintf(&b, "%s from %s (rule %s): %s", ev.Message, ev.Direction, ev.Rule, ev.Error)
	case proxy.EventConnTerminated:
		fmt.Fprintf(&b, "on %s from %s (rule %s)", ev.Message, ev.Direction, ev.Rule)
	case proxy.EventConnHalfClosed:
		fmt.Fprintf(&b, "%s side closed", ev.Direction)
	case proxy.EventConnMalformed:
		fmt.Fprintf(&b, "from %s: %s", ev.Direction, ev.Error)
	case proxy.EventConnClosed:
		fmt.Fprintf(&b, "%s↑ %s↓ %s",
			formatBytes(ev.BytesIn), formatBytes(ev.BytesOut), formatLatency(ev.DurationMs))
	case proxy.EventTestNote:
		b.WriteString(ev.Error)
	}
	return b.String()
}

// formatOffset formats a duration since proxy start as seconds with 3
// decimal places.
func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// formatLatency formats milliseconds into a human-readable string.
func formatLatency(ms float64) string {
	if ms < 1 {
		return fmt.Sprintf("%.0fµs", ms*1000)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

// formatBytes formats byte counts into a compact human-readable string.
func formatBytes(b int64) string {
	switch {
	case b < 1024:
		return fmt.Sprintf("%dB", b)
	case b < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(b)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(b)/(1024*1024))
	}
}
