package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeScenario unmarshals a scenario from JSON. Unknown fields are
// rejected, and duplicate object keys that encoding/json would silently
// last-win are reported as errors. A duplicated "action" key would
// otherwise make a rule inert without any diagnostic.
func DecodeScenario(data []byte) (Scenario, error) {
	if err := checkDuplicateKeys(data); err != nil {
		return Scenario{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var scn Scenario
	if err := dec.Decode(&scn); err != nil {
		return Scenario{}, err
	}
	return scn, nil
}

// DecodeScenarioYAML unmarshals a scenario from YAML. Unknown fields
// are rejected; yaml.v3 reports duplicate mapping keys on its own.
func DecodeScenarioYAML(data []byte) (Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scn Scenario
	if err := dec.Decode(&scn); err != nil {
		if errors.Is(err, io.EOF) {
			return Scenario{}, errors.New("empty scenario document")
		}
		return Scenario{}, err
	}
	return scn, nil
}

// LoadScenario reads and decodes a scenario file, picking the decoder
// from the file extension (.json, .yaml or .yml).
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}

	var scn Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		scn, err = DecodeScenario(data)
	case ".yaml", ".yml":
		scn, err = DecodeScenarioYAML(data)
	default:
		return Scenario{}, fmt.Errorf("scenario %s: unsupported extension %q (want .json, .yaml or .yml)", path, ext)
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return scn, nil
}

// checkDuplicateKeys walks the whole JSON document with a token decoder
// and reports duplicate keys in any object, at any depth.
func checkDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return checkValueDuplicates(dec, "scenario")
}

func checkValueDuplicates(dec *json.Decoder, context string) error {
	t, err := dec.Token()
	if err != nil {
		return nil // malformed JSON is reported by the main decode
	}
	delim, ok := t.(json.Delim)
	if !ok {
		return nil // scalar
	}

	switch delim {
	case '{':
		seen := make(map[string]bool)
		for dec.More() {
			t, err := dec.Token()
			if err != nil {
				return nil
			}
			key, ok := t.(string)
			if !ok {
				return nil
			}
			if seen[key] {
				return fmt.Errorf("duplicate %s key: %q", context, key)
			}
			seen[key] = true

			if err := checkValueDuplicates(dec, context+"."+key); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil
		}
	case '[':
		for i := 0; dec.More(); i++ {
			if err := checkValueDuplicates(dec, fmt.Sprintf("%s[%d]", context, i)); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil { // consume ']'
			return nil
		}
	}
	return nil
}
