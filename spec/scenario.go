// Package spec defines the scenario format: declarative rules that pick
// out proxied protocol messages and name the fault to apply to them.
// Scenarios are decoded from JSON or YAML files and compiled into a
// fault engine before the proxy starts accepting connections.
package spec

// Scenario is a top-level fault injection config: an ordered list of
// rules evaluated first-match-wins against every message the proxy
// relays.
type Scenario struct {
	// Name identifies the scenario in logs and events.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Rules are evaluated in order. The first rule whose match applies
	// decides the action; messages matching no rule are forwarded
	// untouched.
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Rule pairs one match against one action.
type Rule struct {
	// Name labels the rule in emitted events. Must be unique when set.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Match selects which messages the rule applies to. An empty match
	// applies to every message.
	Match Match `json:"match" yaml:"match"`

	// Action is what happens to a matched message.
	Action Action `json:"action" yaml:"action"`
}

// Match narrows a rule to a subset of proxied messages. Every set field
// must hold for the rule to apply; unset fields match anything.
type Match struct {
	// Type is the protocol message name, e.g. "Query", "DataRow",
	// "ErrorResponse", "Startup". Names are direction-scoped the same
	// way type bytes are ("Describe" is a client message, "DataRow" a
	// server one).
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Direction is "client" (messages from the client toward the
	// server) or "server" (the reverse).
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`

	// Phase restricts matching to a connection phase: "startup",
	// "authenticating" or "ready".
	Phase string `json:"phase,omitempty" yaml:"phase,omitempty"`

	// Contains is a byte substring the message payload must contain,
	// e.g. a SQL fragment for Query messages.
	Contains string `json:"contains,omitempty" yaml:"contains,omitempty"`
}
