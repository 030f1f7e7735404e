package pgwire

import "sort"

// Constructors build well-formed messages for fake peers in tests and for
// replies the proxy sends itself. Each returns a Message with direction and
// WireLen already set.

func frontend(tag byte, payload []byte) Message {
	m := Message{Tag: tag, Payload: payload, Dir: FromClient}
	m.WireLen = m.encodedLen()
	return m
}

func backend(tag byte, payload []byte) Message {
	m := Message{Tag: tag, Payload: payload, Dir: FromServer}
	m.WireLen = m.encodedLen()
	return m
}

// NewStartup builds a protocol 3.0 startup packet. Parameters are encoded in
// sorted key order so the frame is deterministic.
func NewStartup(params map[string]string) Message {
	var w payloadWriter
	w.writeInt32(ProtocolVersionNumber)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.writeCString(k)
		w.writeCString(params[k])
	}
	w.writeByte(0)
	m := Message{Payload: w.bytes(), Dir: FromClient}
	m.WireLen = m.encodedLen()
	return m
}

// NewSSLRequest builds the SSL negotiation probe a client may send before
// its startup packet.
func NewSSLRequest() Message {
	var w payloadWriter
	w.writeInt32(SSLRequestCode)
	m := Message{Payload: w.bytes(), Dir: FromClient}
	m.WireLen = m.encodedLen()
	return m
}

// NewCancelRequest builds a cancellation request for the backend identified
// by BackendKeyData.
func NewCancelRequest(pid, secret int32) Message {
	var w payloadWriter
	w.writeInt32(CancelRequestCode)
	w.writeInt32(pid)
	w.writeInt32(secret)
	m := Message{Payload: w.bytes(), Dir: FromClient}
	m.WireLen = m.encodedLen()
	return m
}

// NewQuery builds a simple Query message.
func NewQuery(sql string) Message {
	var w payloadWriter
	w.writeCString(sql)
	return frontend(MsgQuery, w.bytes())
}

// NewPasswordMessage builds a cleartext password response.
func NewPasswordMessage(password string) Message {
	var w payloadWriter
	w.writeCString(password)
	return frontend(MsgPasswordMsg, w.bytes())
}

// NewTerminate builds the client's session-termination message.
func NewTerminate() Message {
	return frontend(MsgTerminate, nil)
}

// NewAuthenticationOk builds the server's authentication-success reply.
func NewAuthenticationOk() Message {
	var w payloadWriter
	w.writeInt32(AuthOk)
	return backend(MsgAuthenticationRequest, w.bytes())
}

// NewAuthenticationCleartext builds a cleartext-password challenge.
func NewAuthenticationCleartext() Message {
	var w payloadWriter
	w.writeInt32(AuthCleartextPassword)
	return backend(MsgAuthenticationRequest, w.bytes())
}

// NewParameterStatus builds a ParameterStatus message.
func NewParameterStatus(name, value string) Message {
	var w payloadWriter
	w.writeCString(name)
	w.writeCString(value)
	return backend(MsgParameterStatus, w.bytes())
}

// NewBackendKeyData builds the cancellation key message sent after auth.
func NewBackendKeyData(pid, secret int32) Message {
	var w payloadWriter
	w.writeInt32(pid)
	w.writeInt32(secret)
	return backend(MsgBackendKeyData, w.bytes())
}

// NewReadyForQuery builds a ReadyForQuery with the given transaction status.
func NewReadyForQuery(status byte) Message {
	var w payloadWriter
	w.writeByte(status)
	return backend(MsgReadyForQuery, w.bytes())
}

// NewCommandComplete builds a CommandComplete with the given command tag.
func NewCommandComplete(tag string) Message {
	var w payloadWriter
	w.writeCString(tag)
	return backend(MsgCommandComplete, w.bytes())
}

// NewEmptyQueryResponse builds the reply to an empty query string.
func NewEmptyQueryResponse() Message {
	return backend(MsgEmptyQueryResponse, nil)
}

// NewErrorResponse builds an ErrorResponse carrying severity, SQLSTATE code
// and primary message fields.
func NewErrorResponse(severity, code, message string) Message {
	var w payloadWriter
	w.writeByte(FieldSeverity)
	w.writeCString(severity)
	w.writeByte(FieldCode)
	w.writeCString(code)
	w.writeByte(FieldMessage)
	w.writeCString(message)
	w.writeByte(0)
	return backend(MsgErrorResponse, w.bytes())
}

// NewRowDescription builds a RowDescription with text-format columns of
// unspecified type, enough for clients that only read column names.
func NewRowDescription(names ...string) Message {
	var w payloadWriter
	w.writeInt16(int16(len(names)))
	for _, name := range names {
		w.writeCString(name)
		w.writeInt32(0)  // table OID
		w.writeInt16(0)  // column attribute number
		w.writeInt32(25) // type OID (text)
		w.writeInt16(-1) // type size (variable)
		w.writeInt32(-1) // type modifier
		w.writeInt16(0)  // format (text)
	}
	return backend(MsgRowDescription, w.bytes())
}

// NewDataRow builds a DataRow. A nil value encodes as SQL NULL.
func NewDataRow(values ...[]byte) Message {
	var w payloadWriter
	w.writeInt16(int16(len(values)))
	for _, v := range values {
		if v == nil {
			w.writeInt32(-1)
			continue
		}
		w.writeInt32(int32(len(v)))
		w.writeRaw(v)
	}
	return backend(MsgDataRow, w.bytes())
}
