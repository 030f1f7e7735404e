package pgwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame size limits. The startup limit matches the server's own; the message
// limit guards the proxy against unbounded allocation when a stream is
// corrupted, and is configurable on the Forwarder.
const (
	MaxStartupPacketLength  uint32 = 10000
	DefaultMaxMessageLength uint32 = 16 << 20 // 16 MiB
)

// ErrMalformedFrame marks a frame whose header is inconsistent with the
// protocol rules: a non-positive or oversized declared length, or a zero type
// byte. Framing cannot be resynchronized after that, so the error is fatal to
// the connection pair that produced it.
var ErrMalformedFrame = errors.New("pgwire: malformed frame")

// ReadStartup reads one untagged startup-phase frame: a 4-byte big-endian
// length that includes the length field itself, then the payload. Used only
// for the first client message on a connection (startup packet, SSLRequest,
// CancelRequest); everything else on the wire is tagged.
func ReadStartup(r io.Reader, dir Direction, max uint32) (Message, error) {
	if max == 0 {
		max = MaxStartupPacketLength
	}
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Message{}, err
	}
	frameLen := binary.BigEndian.Uint32(hdr)
	// Smallest legal startup frame is length + protocol version.
	if frameLen < 8 || frameLen > max {
		return Message{}, fmt.Errorf("%w: startup length %d outside [8, %d]", ErrMalformedFrame, frameLen, max)
	}
	payload := make([]byte, frameLen-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}
	return Message{Payload: payload, Dir: dir, WireLen: int(frameLen)}, nil
}

// ReadMessage reads one tagged frame: a 1-byte type tag, a 4-byte big-endian
// length covering the payload plus the length field itself (the tag is not
// counted), then the payload. It never fabricates a partial Message: short
// reads surface as errors from io.ReadFull.
func ReadMessage(r io.Reader, dir Direction, max uint32) (Message, error) {
	if max == 0 {
		max = DefaultMaxMessageLength
	}
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Message{}, err
	}
	tag := hdr[0]
	if tag == 0 {
		return Message{}, fmt.Errorf("%w: zero type byte", ErrMalformedFrame)
	}
	frameLen := binary.BigEndian.Uint32(hdr[1:])
	if frameLen < 4 || frameLen > max {
		return Message{}, fmt.Errorf("%w: %s length %d outside [4, %d]", ErrMalformedFrame, TypeName(dir, tag), frameLen, max)
	}
	payload := make([]byte, frameLen-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}
	return Message{Tag: tag, Payload: payload, Dir: dir, WireLen: int(frameLen) + 1}, nil
}

// Encode returns the wire bytes for m. The length field is always recomputed
// from the current payload, never carried over, so a mutated message encodes
// with an internally consistent header.
func (m Message) Encode() []byte {
	if m.Tag == 0 {
		buf := make([]byte, 0, 4+len(m.Payload))
		buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(m.Payload)))
		return append(buf, m.Payload...)
	}
	buf := make([]byte, 0, 5+len(m.Payload))
	buf = append(buf, m.Tag)
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(m.Payload)))
	return append(buf, m.Payload...)
}

// WriteMessage writes m to w as a single write so a frame is never split
// across an interleaving close.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(m.Encode()); err != nil {
		return fmt.Errorf("write %s: %w", m.Name(), err)
	}
	return nil
}
