package main

import (
	"os"

	"github.com/matgreaves/pgjinx/proxy"
)

// Event lines go to stderr, so color keys off stderr being a terminal;
// stdout may be a JSONL pipe.
var colorEnabled = os.Getenv("NO_COLOR") == "" && isTTY(os.Stderr)

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// connPalette holds eight pastel true-color codes handed to connections
// round robin. The cycle starts at blue so the first few connections
// stay clear of the red/yellow/green used for severities. Connection
// numbers start at 1.
var connPalette = [8]string{
	"\033[38;2;107;165;223m", // blue
	"\033[38;2;136;107;223m", // violet
	"\033[38;2;223;107;223m", // magenta
	"\033[38;2;223;107;136m", // rose
	"\033[38;2;223;165;107m", // orange
	"\033[38;2;194;223;107m", // lime
	"\033[38;2;107;223;107m", // green
	"\033[38;2;107;223;194m", // teal
}

func colorConn(s string, id int64) string {
	if !colorEnabled {
		return s
	}
	c := connPalette[(id-1)%int64(len(connPalette))]
	return c + s + ansiReset
}

func dim(s string) string {
	if !colorEnabled {
		return s
	}
	return ansiDim + s + ansiReset
}

// colorEventType colors the padded type column by severity: failures
// red, rule hits yellow, readiness green, lifecycle plain.
func colorEventType(t proxy.EventType, padded string) string {
	if !colorEnabled {
		return padded
	}
	switch t {
	case proxy.EventConnDialFailed, proxy.EventConnMalformed,
		proxy.EventTransformFailed, proxy.EventConnTerminated:
		return ansiRed + padded + ansiReset
	case proxy.EventMessage:
		return ansiYellow + padded + ansiReset
	case proxy.EventProxyReady, proxy.EventConnReady:
		return ansiGreen + padded + ansiReset
	}
	return padded
}
