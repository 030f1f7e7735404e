package spec

import (
	"fmt"

	"github.com/matgreaves/pgjinx/pgwire"
)

// knownKinds is the set of action kinds the engine implements.
var knownKinds = map[string]bool{
	"forward":   true,
	"delay":     true,
	"drop":      true,
	"corrupt":   true,
	"terminate": true,
}

var knownDirections = map[string]bool{
	"client": true,
	"server": true,
}

var knownPhases = map[string]bool{
	"startup":        true,
	"authenticating": true,
	"ready":          true,
}

// Validate checks the scenario for structural errors. Returns all
// errors found (not just the first) so the user can fix them in one
// pass.
func (s Scenario) Validate() []string {
	var errs []string

	if len(s.Rules) == 0 {
		errs = append(errs, "scenario must have at least one rule")
	}

	seen := make(map[string]bool)
	for i, r := range s.Rules {
		errs = append(errs, validateRule(i, r)...)
		if r.Name != "" {
			if seen[r.Name] {
				errs = append(errs, fmt.Sprintf("rule %q: duplicate rule name", r.Name))
			}
			seen[r.Name] = true
		}
	}

	return errs
}

func validateRule(i int, r Rule) []string {
	label := fmt.Sprintf("rule %d", i)
	if r.Name != "" {
		label = fmt.Sprintf("rule %q", r.Name)
	}

	var errs []string
	errs = append(errs, validateMatch(label, r.Match)...)

	switch {
	case r.Action.Kind == "":
		errs = append(errs, fmt.Sprintf("%s: action kind is required", label))
	case !knownKinds[r.Action.Kind]:
		errs = append(errs, fmt.Sprintf(
			"%s: unknown action kind %q (must be one of: forward, delay, drop, corrupt, terminate)",
			label, r.Action.Kind,
		))
	}

	if r.Action.Kind == "delay" && r.Action.Delay.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("%s: delay action requires a positive delay", label))
	}
	if r.Action.Kind != "delay" && r.Action.Delay.Duration != 0 {
		errs = append(errs, fmt.Sprintf("%s: delay is only valid on delay actions", label))
	}

	if r.Action.Kind == "corrupt" {
		errs = append(errs, validateCorrupt(label, r.Action.Corrupt)...)
	} else if r.Action.Corrupt != nil {
		errs = append(errs, fmt.Sprintf("%s: corrupt is only valid on corrupt actions", label))
	}

	return errs
}

func validateMatch(label string, m Match) []string {
	var errs []string

	if m.Direction != "" && !knownDirections[m.Direction] {
		errs = append(errs, fmt.Sprintf(
			"%s: unknown direction %q (must be \"client\" or \"server\")", label, m.Direction,
		))
	}
	if m.Phase != "" && !knownPhases[m.Phase] {
		errs = append(errs, fmt.Sprintf(
			"%s: unknown phase %q (must be one of: startup, authenticating, ready)", label, m.Phase,
		))
	}

	if m.Type != "" && !typeKnown(m.Type, m.Direction) {
		// Distinguish a typo from a valid name on the wrong side.
		if m.Direction != "" && typeKnown(m.Type, "") {
			errs = append(errs, fmt.Sprintf(
				"%s: message type %q is never sent by the %s", label, m.Type, m.Direction,
			))
		} else {
			msg := fmt.Sprintf("%s: unknown message type %q", label, m.Type)
			if suggestion := closestType(m.Type); suggestion != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
			}
			errs = append(errs, msg)
		}
	}

	return errs
}

func validateCorrupt(label string, c *Corrupt) []string {
	if c == nil {
		return []string{fmt.Sprintf("%s: corrupt action requires a corrupt block", label)}
	}

	var errs []string
	switch {
	case c.Truncate == nil && c.Replace == nil:
		errs = append(errs, fmt.Sprintf("%s: corrupt block must set truncate or replace", label))
	case c.Truncate != nil && c.Replace != nil:
		errs = append(errs, fmt.Sprintf("%s: corrupt block must set truncate or replace, not both", label))
	}
	if c.Truncate != nil && *c.Truncate < 0 {
		errs = append(errs, fmt.Sprintf("%s: truncate must not be negative", label))
	}
	if c.Replace != nil && c.Replace.Old == "" {
		errs = append(errs, fmt.Sprintf("%s: replace requires a non-empty old string", label))
	}
	return errs
}

// typeKnown reports whether name is a message type the given direction
// can carry. An empty direction accepts names from either side.
func typeKnown(name, direction string) bool {
	switch direction {
	case "client":
		return nameIn(pgwire.TypeNames(pgwire.FromClient), name)
	case "server":
		return nameIn(pgwire.TypeNames(pgwire.FromServer), name)
	default:
		return nameIn(pgwire.TypeNames(pgwire.FromClient), name) ||
			nameIn(pgwire.TypeNames(pgwire.FromServer), name)
	}
}

func nameIn(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// closestType returns the message type name nearest to target by edit
// distance. A name further away than half of target's length is noise
// rather than a typo, so "" comes back for those.
func closestType(target string) string {
	limit := len(target)/2 + 1
	closest := ""

	for _, dir := range []pgwire.Direction{pgwire.FromClient, pgwire.FromServer} {
		for _, name := range pgwire.TypeNames(dir) {
			if d := editDistance(target, name); d < limit {
				limit = d
				closest = name
			}
		}
	}
	return closest
}

// editDistance is single-row Levenshtein.
func editDistance(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return len(a) + len(b)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}
			diag = row[j]
			row[j] = min(sub, row[j]+1, row[j-1]+1)
		}
	}
	return row[len(b)]
}
