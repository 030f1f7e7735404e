package spec

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Action describes the fault applied to a matched message.
type Action struct {
	// Kind is one of "forward", "delay", "drop", "corrupt",
	// "terminate".
	Kind string `json:"kind" yaml:"kind"`

	// Delay is how long to hold the message before forwarding it.
	// Required when Kind is "delay". Later messages in the same
	// direction queue behind the held one, so ordering is preserved.
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// Corrupt describes how to mangle the payload before forwarding.
	// Required when Kind is "corrupt".
	Corrupt *Corrupt `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// Corrupt selects exactly one payload transformation. The frame length
// is recomputed after the transform, so the output is always a
// well-formed frame even when the new payload no longer parses as its
// message type.
type Corrupt struct {
	// Truncate keeps only the first N bytes of the payload.
	Truncate *int `json:"truncate,omitempty" yaml:"truncate,omitempty"`

	// Replace substitutes every occurrence of Old with New in the
	// payload.
	Replace *Replace `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// Replace is a byte-level substitution applied to a message payload.
type Replace struct {
	Old string `json:"old" yaml:"old"`
	New string `json:"new" yaml:"new"`
}

// Duration wraps time.Duration with JSON and YAML marshalling as a
// string (e.g. "5s", "100ms") instead of nanoseconds.
type Duration struct {
	time.Duration
}

// IsZero reports whether d is the zero duration. Used by encoding/json
// (Go 1.24+) to evaluate omitempty on struct fields.
func (d Duration) IsZero() bool {
	return d.Duration == 0
}

func (d Duration) MarshalJSON() ([]byte, error) {
	if d.Duration == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.Duration.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}
