package fault

import (
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/matgreaves/pgjinx/pgwire"
	"github.com/matgreaves/pgjinx/spec"
)

func TestCompile_Scenario(t *testing.T) {
	is := is.New(t)

	two := 2
	scn := spec.Scenario{
		Name: "mixed",
		Rules: []spec.Rule{
			{
				Name:   "slow-selects",
				Match:  spec.Match{Type: "Query", Direction: "client", Contains: "SELECT"},
				Action: spec.Action{Kind: "delay", Delay: spec.Duration{Duration: 2 * time.Second}},
			},
			{
				Name:   "clip-rows",
				Match:  spec.Match{Type: "DataRow", Direction: "server", Phase: "ready"},
				Action: spec.Action{Kind: "corrupt", Corrupt: &spec.Corrupt{Truncate: &two}},
			},
			{
				Name:   "kill-commits",
				Match:  spec.Match{Type: "Query", Contains: "COMMIT"},
				Action: spec.Action{Kind: "terminate"},
			},
		},
	}

	eng, err := Compile(scn)
	is.NoErr(err)

	action, rule := eng.Evaluate(pgwire.NewQuery("SELECT 1"), pgwire.PhaseReady)
	is.Equal(action.Kind, Delay)
	is.Equal(action.Delay, 2*time.Second)
	is.Equal(rule, "slow-selects")

	action, rule = eng.Evaluate(pgwire.NewDataRow([]byte("abcdef")), pgwire.PhaseReady)
	is.Equal(action.Kind, Corrupt)
	is.Equal(rule, "clip-rows")
	out, err := action.Transform([]byte("abcdef"))
	is.NoErr(err)
	is.Equal(string(out), "ab")

	action, rule = eng.Evaluate(pgwire.NewQuery("COMMIT"), pgwire.PhaseReady)
	is.Equal(action.Kind, Terminate)
	is.Equal(rule, "kill-commits")

	// Unmatched traffic forwards.
	action, rule = eng.Evaluate(pgwire.NewReadyForQuery(pgwire.TxnStatusIdle), pgwire.PhaseReady)
	is.Equal(action.Kind, Forward)
	is.Equal(rule, "")
}

func TestCompile_ReplaceTransform(t *testing.T) {
	is := is.New(t)

	scn := spec.Scenario{
		Rules: []spec.Rule{
			{
				Name:  "savepoint-begin",
				Match: spec.Match{Type: "Query"},
				Action: spec.Action{
					Kind:    "corrupt",
					Corrupt: &spec.Corrupt{Replace: &spec.Replace{Old: "BEGIN", New: "SAVEPOINT sp"}},
				},
			},
		},
	}

	eng, err := Compile(scn)
	is.NoErr(err)

	action, _ := eng.Evaluate(pgwire.NewQuery("BEGIN"), pgwire.PhaseReady)
	is.Equal(action.Kind, Corrupt)
	out, err := action.Transform([]byte("BEGIN\x00"))
	is.NoErr(err)
	is.Equal(string(out), "SAVEPOINT sp\x00")
}

func TestCompile_PhaseAndDirectionScoping(t *testing.T) {
	is := is.New(t)

	scn := spec.Scenario{
		Rules: []spec.Rule{
			{
				Name:   "drop-auth",
				Match:  spec.Match{Type: "PasswordMessage", Phase: "authenticating"},
				Action: spec.Action{Kind: "drop"},
			},
		},
	}

	eng, err := Compile(scn)
	is.NoErr(err)

	pw := pgwire.NewPasswordMessage("hunter2")
	action, _ := eng.Evaluate(pw, pgwire.PhaseAuthenticating)
	is.Equal(action.Kind, Drop)

	action, _ = eng.Evaluate(pw, pgwire.PhaseReady)
	is.Equal(action.Kind, Forward) // same message outside the phase
}

func TestCompile_InvalidScenario(t *testing.T) {
	scn := spec.Scenario{
		Rules: []spec.Rule{
			{Match: spec.Match{Direction: "up"}, Action: spec.Action{Kind: "mangle"}},
		},
	}

	_, err := Compile(scn)
	if err == nil {
		t.Fatal("expected error for invalid scenario")
	}
	msg := err.Error()
	if !strings.Contains(msg, `unknown direction "up"`) || !strings.Contains(msg, `unknown action kind "mangle"`) {
		t.Errorf("expected both problems reported, got: %v", err)
	}
}

func TestCompile_UnnamedRulesGetPositionalNames(t *testing.T) {
	is := is.New(t)

	scn := spec.Scenario{
		Rules: []spec.Rule{
			{Match: spec.Match{Type: "Sync"}, Action: spec.Action{Kind: "forward"}},
			{Match: spec.Match{Type: "Query"}, Action: spec.Action{Kind: "drop"}},
		},
	}

	eng, err := Compile(scn)
	is.NoErr(err)

	_, rule := eng.Evaluate(pgwire.NewQuery("SELECT 1"), pgwire.PhaseReady)
	is.Equal(rule, "rule[1]")
}
