package pgjinx

import (
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/matgreaves/pgjinx/proxy"
)

// jinxTB wraps a testing.TB to intercept assertion failures and record
// them as test.note events in the proxy's event log. This creates a
// unified timeline of injected faults and the test assertions they
// caused to fail.
//
// Helper() is NOT overridden: calls pass through to the embedded TB,
// preserving correct file:line reporting even when assertion libraries
// (testify, is, require, etc.) call t.Helper() internally.
type jinxTB struct {
	testing.TB
	log *proxy.EventLog
}

func (tb *jinxTB) Error(args ...any) {
	tb.Helper()
	tb.postNote(fmt.Sprint(args...))
	tb.TB.Error(args...)
}

func (tb *jinxTB) Errorf(format string, args ...any) {
	tb.Helper()
	tb.postNote(fmt.Sprintf(format, args...))
	tb.TB.Errorf(format, args...)
}

func (tb *jinxTB) Fatal(args ...any) {
	tb.Helper()
	tb.postNote(fmt.Sprint(args...))
	tb.TB.Fatal(args...)
}

func (tb *jinxTB) Fatalf(format string, args ...any) {
	tb.Helper()
	tb.postNote(fmt.Sprintf(format, args...))
	tb.TB.Fatalf(format, args...)
}

func (tb *jinxTB) postNote(msg string) {
	// Capture the caller's file:line. Skip postNote (0) and the
	// Error/Errorf/Fatal/Fatalf wrapper (1) to reach the call site.
	if _, file, line, ok := runtime.Caller(2); ok {
		msg = fmt.Sprintf("%s:%d: %s", filepath.Base(file), line, msg)
	}
	tb.log.Publish(proxy.Event{Type: proxy.EventTestNote, Error: msg})
}
