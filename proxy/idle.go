package proxy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matgreaves/run"
)

// ErrIdle is returned by IdleTimer.Runner when the proxy has had no
// active sessions for the configured timeout.
var ErrIdle = errors.New("idle timeout reached")

// IdleTimer signals shutdown after the proxy has carried no sessions
// for a full timeout window. SessionOpened holds the countdown off
// while anything is connected; SessionClosed restarts it when the last
// session leaves.
type IdleTimer struct {
	// Emit, when set, receives a proxy.idle event as the timeout
	// fires. Set it before any session can open.
	Emit func(Event)

	timeout time.Duration

	mu     sync.Mutex
	active int
	timer  *time.Timer

	once sync.Once
	idle chan struct{}
}

// NewIdleTimer creates an IdleTimer that will fire after timeout if no
// session arrives first. Pass zero to disable (the timer never fires).
func NewIdleTimer(timeout time.Duration) *IdleTimer {
	t := &IdleTimer{
		timeout: timeout,
		idle:    make(chan struct{}),
	}
	if timeout > 0 {
		t.timer = time.AfterFunc(timeout, t.fire)
	}
	return t
}

// fire runs on the timer goroutine. A session that slips in between the
// timer expiring and fire taking the lock wins: the proxy is not idle,
// and the countdown restarts when that session closes.
func (t *IdleTimer) fire() {
	t.mu.Lock()
	quiet := t.active == 0
	t.mu.Unlock()
	if !quiet {
		return
	}
	t.once.Do(func() {
		if t.Emit != nil {
			t.Emit(Event{Type: EventProxyIdle})
		}
		close(t.idle)
	})
}

// SessionOpened records a new connection pair and stops the countdown.
// Safe to call on a nil timer.
func (t *IdleTimer) SessionOpened() {
	if t == nil || t.timeout == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
	t.timer.Stop()
}

// SessionClosed records a pair teardown. If no sessions remain the
// countdown restarts. Safe to call on a nil timer.
func (t *IdleTimer) SessionClosed() {
	if t == nil || t.timeout == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
	if t.active == 0 {
		t.timer.Reset(t.timeout)
	}
}

// ShutdownCh returns a channel that is closed when the idle timeout
// fires.
func (t *IdleTimer) ShutdownCh() <-chan struct{} {
	return t.idle
}

// Runner returns a run.Runner that returns ErrIdle when the timeout
// fires, taking the rest of its group down with it. Cancellation of the
// group from elsewhere ends the runner cleanly.
func (t *IdleTimer) Runner() run.Runner {
	return run.Func(func(ctx context.Context) error {
		select {
		case <-t.idle:
			return ErrIdle
		case <-ctx.Done():
			return nil
		}
	})
}
