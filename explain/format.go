package explain

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// JSON writes the report as indented JSON to w.
func JSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Pretty writes a human-readable report to w.
func Pretty(w io.Writer, r *Report) {
	if r.Addr != "" {
		fmt.Fprintf(w, "proxy %s  ", r.Addr)
	}
	fmt.Fprintf(w, "%d connections  %d matched messages", len(r.Connections), r.Matched)
	if r.Idle {
		fmt.Fprint(w, "  (exited idle)")
	}
	fmt.Fprintln(w)

	if len(r.Rules) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Rules:")
		for _, rh := range r.Rules {
			fmt.Fprintf(w, "    %s  %s ×%d\n", rh.Rule, rh.Action, rh.Count)
		}
	}

	if len(r.Connections) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Connections:")
		for _, c := range r.Connections {
			fmt.Fprintf(w, "    #%d  %s  %s", c.ID, identity(c), c.Outcome)
			if c.Outcome != "dial_failed" {
				fmt.Fprintf(w, "  %s↑ %s↓  %s",
					formatBytes(c.BytesIn), formatBytes(c.BytesOut), formatDurationMs(c.DurationMs))
			}
			if c.Matched > 0 {
				fmt.Fprintf(w, "  (%d matched)", c.Matched)
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.Faults) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Faults:")
		for _, f := range r.Faults {
			fmt.Fprintf(w, "    %s\n", faultLine(f))
		}
	}

	if len(r.Assertions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Assertions:")
		for _, a := range r.Assertions {
			if a.File != "" {
				fmt.Fprintf(w, "    %s:%d: %s\n", a.File, a.Line, a.Message)
			} else {
				fmt.Fprintf(w, "    %s\n", a.Message)
			}
		}
	}
}

// Condensed returns a compact multi-line string suitable for t.Log
// output when a test fails. Faults come first (a dead pair explains most
// downstream symptoms), then which rules actually fired, since the usual
// question when a fault scenario misbehaves is "did my rule match at
// all". Returns "" when the proxy stayed invisible: no faults, no rule
// matched.
func Condensed(r *Report) string {
	if len(r.Faults) == 0 && r.Matched == 0 {
		return ""
	}

	// Per-section caps so a chatty scenario cannot flood the test log.
	const maxFaults = 8
	const maxRules = 8

	var b strings.Builder

	for i, f := range r.Faults {
		if i >= maxFaults {
			fmt.Fprintf(&b, "pgjinx: ... %d more faults\n", len(r.Faults)-maxFaults)
			break
		}
		fmt.Fprintf(&b, "pgjinx: %s\n", faultLine(f))
	}

	for i, rh := range r.Rules {
		if i >= maxRules {
			fmt.Fprintf(&b, "pgjinx: ... %d more rules\n", len(r.Rules)-maxRules)
			break
		}
		fmt.Fprintf(&b, "pgjinx: rule %s  %s ×%d\n", rh.Rule, rh.Action, rh.Count)
	}

	return strings.TrimRight(b.String(), "\n")
}

// faultLine renders one fault as a single line.
func faultLine(f Fault) string {
	var b strings.Builder
	if f.Conn != 0 {
		fmt.Fprintf(&b, "#%d  ", f.Conn)
	}
	switch f.Kind {
	case "terminated":
		fmt.Fprintf(&b, "terminated by rule %s", f.Rule)
		if f.Message != "" {
			fmt.Fprintf(&b, " (%s from %s)", f.Message, f.Direction)
		}
	case "dial_failed":
		fmt.Fprintf(&b, "upstream dial failed: %s", f.Detail)
	case "malformed":
		fmt.Fprintf(&b, "malformed frame from %s: %s", f.Direction, f.Detail)
	case "transform_failed":
		fmt.Fprintf(&b, "transform failed on %s (rule %s): %s", f.Message, f.Rule, f.Detail)
	default:
		fmt.Fprintf(&b, "%s: %s", f.Kind, f.Detail)
	}
	return b.String()
}

// identity renders user@database, tolerating pairs that never sent a
// startup packet.
func identity(c Connection) string {
	if c.User == "" && c.Database == "" {
		return "-"
	}
	return c.User + "@" + c.Database
}

func formatDurationMs(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

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
