// Package fault decides what happens to each proxied message. An Engine
// holds an ordered rule set; the first rule whose predicate matches a
// message decides its fate, and messages matching no rule are forwarded
// untouched.
package fault

import (
	"bytes"
	"time"

	"github.com/matgreaves/pgjinx/pgwire"
)

// ActionKind enumerates what can happen to one matched message.
type ActionKind uint8

const (
	// Forward relays the message unchanged. Also the verdict for
	// messages matching no rule.
	Forward ActionKind = iota

	// Delay holds the message for Action.Delay, then forwards it.
	// Messages behind it in the same direction wait their turn, so
	// per-direction ordering survives.
	Delay

	// Drop discards the message entirely.
	Drop

	// Corrupt rewrites the payload through Action.Transform and
	// forwards the result with a recomputed length.
	Corrupt

	// Terminate abruptly closes both sides of the connection pair.
	Terminate
)

func (k ActionKind) String() string {
	switch k {
	case Forward:
		return "forward"
	case Delay:
		return "delay"
	case Drop:
		return "drop"
	case Corrupt:
		return "corrupt"
	case Terminate:
		return "terminate"
	}
	return "unknown"
}

// Action is the engine's verdict for one message. Kind selects which
// parameter field applies.
type Action struct {
	Kind      ActionKind
	Delay     time.Duration // Kind == Delay
	Transform Transform     // Kind == Corrupt
}

// DirectionFilter scopes a rule to one side of the proxied conversation.
type DirectionFilter uint8

const (
	AnyDirection   DirectionFilter = iota
	ClientMessages                 // client → server traffic only
	ServerMessages                 // server → client traffic only
)

// PhaseFilter scopes a rule to a connection phase.
type PhaseFilter uint8

const (
	AnyPhase PhaseFilter = iota
	StartupOnly
	AuthenticatingOnly
	ReadyOnly
)

// Match is a rule's predicate. Every set field must hold for the rule
// to apply; the zero Match applies to every message.
type Match struct {
	// Type is the direction-scoped message name per
	// pgwire.Message.Name, e.g. "Query" or "DataRow". Empty matches
	// any type.
	Type string

	Direction DirectionFilter
	Phase     PhaseFilter

	// Contains is a byte substring the payload must contain.
	Contains []byte
}

func (m Match) applies(msg pgwire.Message, phase pgwire.Phase) bool {
	if m.Type != "" && msg.Name() != m.Type {
		return false
	}
	switch m.Direction {
	case ClientMessages:
		if msg.Dir != pgwire.FromClient {
			return false
		}
	case ServerMessages:
		if msg.Dir != pgwire.FromServer {
			return false
		}
	}
	switch m.Phase {
	case StartupOnly:
		if phase != pgwire.PhaseStartup {
			return false
		}
	case AuthenticatingOnly:
		if phase != pgwire.PhaseAuthenticating {
			return false
		}
	case ReadyOnly:
		if phase != pgwire.PhaseReady {
			return false
		}
	}
	if len(m.Contains) > 0 && !bytes.Contains(msg.Payload, m.Contains) {
		return false
	}
	return true
}

// Rule pairs one predicate with the action for messages it selects.
type Rule struct {
	Name   string
	Match  Match
	Action Action
}

// Engine evaluates rules in order, first match wins. Immutable after
// New, so one engine can be shared read-only by every session and both
// directions of each; sessions wanting different rules get their own
// engine.
type Engine struct {
	rules []Rule
}

// New builds an engine from rules, keeping their order. The slice is
// copied; the caller may reuse it.
func New(rules []Rule) *Engine {
	return &Engine{rules: append([]Rule(nil), rules...)}
}

// Evaluate returns the action for a message observed in the given phase
// (the message carries its own direction) and the name of the deciding
// rule. A nil engine, like an empty one, forwards everything.
func (e *Engine) Evaluate(msg pgwire.Message, phase pgwire.Phase) (Action, string) {
	if e == nil {
		return Action{Kind: Forward}, ""
	}
	for _, r := range e.rules {
		if r.Match.applies(msg, phase) {
			return r.Action, r.Name
		}
	}
	return Action{Kind: Forward}, ""
}
