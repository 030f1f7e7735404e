package fault

import (
	"bytes"
	"errors"
	"fmt"
)

// Transform is a pure payload rewrite used by Corrupt actions. It must
// not mutate its input and must not return an error value as if it were
// payload: a failing transform makes the forwarder drop the message
// instead of forwarding garbage.
type Transform func(payload []byte) ([]byte, error)

// Truncate returns a transform keeping only the first n bytes of the
// payload. Payloads already at or below n pass through as a copy.
func Truncate(n int) Transform {
	return func(payload []byte) ([]byte, error) {
		if n < 0 {
			return nil, fmt.Errorf("truncate: negative length %d", n)
		}
		if n > len(payload) {
			n = len(payload)
		}
		return append([]byte(nil), payload[:n]...), nil
	}
}

// Replace returns a transform substituting every occurrence of old with
// new in the payload.
func Replace(old, new string) Transform {
	return func(payload []byte) ([]byte, error) {
		if old == "" {
			return nil, errors.New("replace: empty old string")
		}
		return bytes.ReplaceAll(payload, []byte(old), []byte(new)), nil
	}
}
