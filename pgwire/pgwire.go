// Package pgwire implements PostgreSQL v3 wire protocol framing: reading and
// writing discrete protocol messages, inspecting the payloads the proxy cares
// about, and constructing well-formed messages for tests and spoofed replies.
// It knows nothing about proxying; it is pure framing.
package pgwire

import "fmt"

// Direction says which peer produced a message.
type Direction uint8

const (
	FromClient Direction = iota
	FromServer
)

func (d Direction) String() string {
	switch d {
	case FromClient:
		return "client"
	case FromServer:
		return "server"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Phase is the stage of a connection's handshake. Framing differs by phase:
// the first client message has no type byte. Phases only ever advance.
type Phase uint8

const (
	PhaseStartup Phase = iota
	PhaseAuthenticating
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseStartup:
		return "startup"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseReady:
		return "ready"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Message is one decoded protocol frame. Tag is zero for untagged
// startup-phase frames (startup packet, SSLRequest, CancelRequest); every
// other frame carries the protocol's 1-byte type tag. Payload excludes the
// header. WireLen is the encoded size in bytes, header included.
//
// A Message is immutable once decoded: rewrites go through WithPayload, which
// returns a copy, so the original bytes stay available for events.
type Message struct {
	Tag     byte
	Payload []byte
	Dir     Direction
	WireLen int
}

// Name returns the protocol name for the message type ("Query", "DataRow"),
// resolved against the message's direction since tag bytes collide across
// directions.
func (m Message) Name() string {
	if m.Tag == 0 {
		return startupName(m.Payload)
	}
	return TypeName(m.Dir, m.Tag)
}

// WithPayload returns a copy of m carrying the given payload and a WireLen
// recomputed for it. The payload slice is not copied; callers hand over
// ownership.
func (m Message) WithPayload(p []byte) Message {
	c := m
	c.Payload = p
	c.WireLen = c.encodedLen()
	return c
}

func (m Message) encodedLen() int {
	if m.Tag == 0 {
		return 4 + len(m.Payload)
	}
	return 5 + len(m.Payload)
}
