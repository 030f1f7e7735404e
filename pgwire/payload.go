package pgwire

import (
	"encoding/binary"
	"fmt"
)

// payloadReader reads protocol primitives from a message payload.
type payloadReader struct {
	buf []byte
	pos int
}

func newPayloadReader(buf []byte) *payloadReader {
	return &payloadReader{buf: buf}
}

func (r *payloadReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("pgwire: short payload at offset %d, need %d bytes, have %d", r.pos, n, len(r.buf)-r.pos)
	}
	return nil
}

func (r *payloadReader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *payloadReader) int16() (int16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return v, nil
}

func (r *payloadReader) int32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

// cstring reads a NUL-terminated string.
func (r *payloadReader) cstring() (string, error) {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("pgwire: unterminated string at offset %d", r.pos)
}

// remaining returns all unread bytes.
func (r *payloadReader) remaining() []byte {
	if r.pos >= len(r.buf) {
		return nil
	}
	return r.buf[r.pos:]
}

// payloadWriter builds message payloads.
type payloadWriter struct {
	buf []byte
}

func (w *payloadWriter) writeByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *payloadWriter) writeInt16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *payloadWriter) writeInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// writeCString writes s with a NUL terminator.
func (w *payloadWriter) writeCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *payloadWriter) writeRaw(data []byte) {
	w.buf = append(w.buf, data...)
}

func (w *payloadWriter) bytes() []byte {
	return w.buf
}

// StartupVersion returns the version field of an untagged startup-phase
// payload: the protocol version for a real startup, or one of the special
// request codes.
func StartupVersion(payload []byte) (int32, error) {
	return newPayloadReader(payload).int32()
}

// IsStartupRequest reports whether m is a protocol 3.x startup packet.
func IsStartupRequest(m Message) bool {
	if m.Tag != 0 {
		return false
	}
	v, err := StartupVersion(m.Payload)
	return err == nil && v>>16 == ProtocolVersionNumber>>16
}

// IsSSLRequest reports whether m is an SSL negotiation probe.
func IsSSLRequest(m Message) bool {
	if m.Tag != 0 {
		return false
	}
	v, err := StartupVersion(m.Payload)
	return err == nil && v == SSLRequestCode
}

// IsGSSENCRequest reports whether m is a GSSAPI encryption probe.
func IsGSSENCRequest(m Message) bool {
	if m.Tag != 0 {
		return false
	}
	v, err := StartupVersion(m.Payload)
	return err == nil && v == GSSENCRequestCode
}

// IsCancelRequest reports whether m is a query cancellation request.
func IsCancelRequest(m Message) bool {
	if m.Tag != 0 {
		return false
	}
	v, err := StartupVersion(m.Payload)
	return err == nil && v == CancelRequestCode
}

// StartupParams returns the key/value parameters of a startup packet
// (user, database, application_name, ...).
func StartupParams(payload []byte) (map[string]string, error) {
	r := newPayloadReader(payload)
	if _, err := r.int32(); err != nil {
		return nil, err
	}
	params := make(map[string]string)
	for {
		key, err := r.cstring()
		if err != nil {
			return nil, err
		}
		if key == "" {
			return params, nil
		}
		value, err := r.cstring()
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
}

// AuthResult returns the authentication code from an AuthenticationRequest.
// AuthOk means the server accepted the session.
func AuthResult(m Message) (int32, error) {
	if m.Tag != MsgAuthenticationRequest {
		return 0, fmt.Errorf("pgwire: AuthResult on %s message", m.Name())
	}
	return newPayloadReader(m.Payload).int32()
}

// TxnStatus returns the transaction status byte of a ReadyForQuery message.
func TxnStatus(m Message) (byte, error) {
	if m.Tag != MsgReadyForQuery {
		return 0, fmt.Errorf("pgwire: TxnStatus on %s message", m.Name())
	}
	return newPayloadReader(m.Payload).byte()
}

// QueryString returns the SQL text of a simple Query message.
func QueryString(m Message) (string, error) {
	if m.Tag != MsgQuery {
		return "", fmt.Errorf("pgwire: QueryString on %s message", m.Name())
	}
	return newPayloadReader(m.Payload).cstring()
}

// ErrorFields returns the field-code → value pairs of an ErrorResponse or
// NoticeResponse.
func ErrorFields(m Message) (map[byte]string, error) {
	if m.Tag != MsgErrorResponse && m.Tag != MsgNoticeResponse {
		return nil, fmt.Errorf("pgwire: ErrorFields on %s message", m.Name())
	}
	r := newPayloadReader(m.Payload)
	fields := make(map[byte]string)
	for {
		code, err := r.byte()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return fields, nil
		}
		value, err := r.cstring()
		if err != nil {
			return nil, err
		}
		fields[code] = value
	}
}
