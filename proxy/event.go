package proxy

import (
	"context"
	"sync"
	"time"
)

// EventType identifies the kind of proxy event.
type EventType string

const (
	// Proxy lifecycle.
	EventProxyReady EventType = "proxy.ready"
	EventProxyIdle  EventType = "proxy.idle"

	// Connection pair lifecycle.
	EventConnOpened     EventType = "conn.opened"
	EventConnStartup    EventType = "conn.startup"
	EventConnReady      EventType = "conn.ready"
	EventConnDialFailed EventType = "conn.dial_failed"
	EventConnHalfClosed EventType = "conn.half_closed"
	EventConnMalformed  EventType = "conn.malformed"
	EventConnTerminated EventType = "conn.terminated"
	EventConnClosed     EventType = "conn.closed"

	// Message handling. conn.message is emitted only when a rule
	// matched; unmatched pass-through traffic stays silent so the log
	// grows with injected faults, not with throughput.
	EventMessage         EventType = "conn.message"
	EventTransformFailed EventType = "rule.transform_failed"

	// EventTestNote is never emitted by the proxy itself: the client
	// SDK publishes test assertions and annotations under this type so
	// they land on the same timeline as the faults around them.
	EventTestNote EventType = "test.note"
)

// Event is a single entry in the proxy event log.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	Conn       int64     `json:"conn,omitempty"`
	Addr       string    `json:"addr,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	Message    string    `json:"message,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Action     string    `json:"action,omitempty"`
	User       string    `json:"user,omitempty"`
	Database   string    `json:"database,omitempty"`
	BytesIn    int64     `json:"bytes_in,omitempty"`
	BytesOut   int64     `json:"bytes_out,omitempty"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventLog records everything the proxy does, in order. Appends assign
// contiguous 1-based sequence numbers; readers can snapshot the log,
// replay it from any sequence number, or block until an event they care
// about shows up.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
	wake   chan struct{} // closed and swapped by every Publish
}

// NewEventLog returns an empty log ready for use.
func NewEventLog() *EventLog {
	return &EventLog{wake: make(chan struct{})}
}

// Publish appends event to the log, assigning the next sequence number
// and stamping the timestamp if the caller left it zero. Anyone blocked
// in Subscribe or WaitFor wakes up.
func (l *EventLog) Publish(event Event) {
	l.mu.Lock()
	l.seq++
	event.Seq = l.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.events = append(l.events, event)
	wake := l.wake
	l.wake = make(chan struct{})
	l.mu.Unlock()

	close(wake)
}

// after returns a copy of every event with Seq > seq, plus the channel
// that closes on the next append. Both come out of one critical
// section: a caller that drains the tail and then blocks on the channel
// cannot miss an event published in between.
func (l *EventLog) after(seq uint64) ([]Event, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Sequence numbers are contiguous from 1, so the tail after seq
	// starts at slice index seq.
	if int(seq) >= len(l.events) {
		return nil, l.wake
	}
	tail := make([]Event, len(l.events)-int(seq))
	copy(tail, l.events[seq:])
	return tail, l.wake
}

// Events returns a snapshot of the whole log.
func (l *EventLog) Events() []Event {
	return l.Since(0)
}

// Since returns a copy of all events with sequence number greater than
// seq.
func (l *EventLog) Since(seq uint64) []Event {
	tail, _ := l.after(seq)
	return tail
}

// Subscribe returns a channel that carries events with Seq > fromSeq:
// first whatever the log already holds, then new events as they are
// published. The channel closes when ctx is cancelled.
//
// Delivery is lossy under backpressure. The channel is buffered (256)
// and Publish never blocks, so a subscriber that stops draining loses
// events rather than stalling the proxy.
func (l *EventLog) Subscribe(ctx context.Context, fromSeq uint64, filter func(Event) bool) <-chan Event {
	out := make(chan Event, 256)

	go func() {
		defer close(out)

		seen := fromSeq
		for {
			tail, wake := l.after(seen)
			for _, e := range tail {
				seen = e.Seq
				if filter != nil && !filter(e) {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				default:
					// slow subscriber, shed the event
				}
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// WaitFor returns the first event satisfying match. Events already in
// the log are checked before blocking, so waiting for something that
// has happened returns immediately; otherwise WaitFor sleeps until a
// matching event is published or ctx is cancelled.
func (l *EventLog) WaitFor(ctx context.Context, match func(Event) bool) (Event, error) {
	var seen uint64
	for {
		tail, wake := l.after(seen)
		for _, e := range tail {
			if match(e) {
				return e, nil
			}
			seen = e.Seq
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
