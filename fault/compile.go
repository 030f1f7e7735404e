package fault

import (
	"fmt"
	"strings"

	"github.com/matgreaves/pgjinx/spec"
)

// Compile validates a decoded scenario and builds the engine for it.
// Validation problems are all reported in one error. Unnamed rules get
// positional names ("rule[2]") so events can still point at them.
func Compile(scn spec.Scenario) (*Engine, error) {
	if errs := scn.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid scenario: %s", strings.Join(errs, "; "))
	}

	rules := make([]Rule, 0, len(scn.Rules))
	for i, r := range scn.Rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
		}

		action, err := compileAction(r.Action)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		rules = append(rules, Rule{
			Name:   name,
			Match:  compileMatch(r.Match),
			Action: action,
		})
	}

	return New(rules), nil
}

func compileMatch(m spec.Match) Match {
	cm := Match{Type: m.Type}
	if m.Contains != "" {
		cm.Contains = []byte(m.Contains)
	}

	switch m.Direction {
	case "client":
		cm.Direction = ClientMessages
	case "server":
		cm.Direction = ServerMessages
	}

	switch m.Phase {
	case "startup":
		cm.Phase = StartupOnly
	case "authenticating":
		cm.Phase = AuthenticatingOnly
	case "ready":
		cm.Phase = ReadyOnly
	}

	return cm
}

func compileAction(a spec.Action) (Action, error) {
	switch a.Kind {
	case "forward":
		return Action{Kind: Forward}, nil
	case "delay":
		return Action{Kind: Delay, Delay: a.Delay.Duration}, nil
	case "drop":
		return Action{Kind: Drop}, nil
	case "corrupt":
		switch {
		case a.Corrupt.Truncate != nil:
			return Action{Kind: Corrupt, Transform: Truncate(*a.Corrupt.Truncate)}, nil
		case a.Corrupt.Replace != nil:
			return Action{Kind: Corrupt, Transform: Replace(a.Corrupt.Replace.Old, a.Corrupt.Replace.New)}, nil
		}
		// Unreachable after Validate.
		return Action{}, fmt.Errorf("corrupt action has no transform")
	case "terminate":
		return Action{Kind: Terminate}, nil
	}
	// Unreachable after Validate.
	return Action{}, fmt.Errorf("unknown action kind %q", a.Kind)
}
