package proxy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdleTimer_FiresWhenQuiet(t *testing.T) {
	timer := NewIdleTimer(50 * time.Millisecond)

	select {
	case <-timer.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("idle timer did not fire")
	}
}

func TestIdleTimer_ActiveSessionHoldsTimer(t *testing.T) {
	timer := NewIdleTimer(50 * time.Millisecond)
	timer.SessionOpened()

	select {
	case <-timer.ShutdownCh():
		t.Fatal("timer fired while a session was active")
	case <-time.After(150 * time.Millisecond):
	}

	timer.SessionClosed()

	select {
	case <-timer.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not restart after last session closed")
	}
}

func TestIdleTimer_ZeroTimeoutDisabled(t *testing.T) {
	timer := NewIdleTimer(0)
	timer.SessionOpened()
	timer.SessionClosed()

	select {
	case <-timer.ShutdownCh():
		t.Fatal("disabled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIdleTimer_NilReceiverIsSafe(t *testing.T) {
	var timer *IdleTimer
	timer.SessionOpened()
	timer.SessionClosed()
}

func TestIdleTimer_EmitsIdleEvent(t *testing.T) {
	log := NewEventLog()
	timer := NewIdleTimer(30 * time.Millisecond)
	timer.Emit = log.Publish

	select {
	case <-timer.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("idle timer did not fire")
	}

	events := log.Events()
	if len(events) != 1 || events[0].Type != EventProxyIdle {
		t.Fatalf("events = %+v, want one proxy.idle", events)
	}
}

func TestIdleTimer_RunnerReturnsErrIdle(t *testing.T) {
	timer := NewIdleTimer(30 * time.Millisecond)

	err := timer.Runner().Run(context.Background())
	if !errors.Is(err, ErrIdle) {
		t.Fatalf("got %v, want ErrIdle", err)
	}
}

func TestIdleTimer_RunnerStopsOnCancel(t *testing.T) {
	timer := NewIdleTimer(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := timer.Runner().Run(ctx); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
}
