package pgwire

import (
	"bytes"
	"strings"
	"testing"
)

// --- payloadReader / payloadWriter round-trip tests ---

func TestPayloadReaderWriter_RoundTrip(t *testing.T) {
	var w payloadWriter
	w.writeByte('Z')
	w.writeInt16(-2)
	w.writeInt32(196608)
	w.writeCString("application_name")
	w.writeRaw([]byte{0xde, 0xad})

	r := newPayloadReader(w.bytes())
	b, err := r.byte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 'Z' {
		t.Errorf("byte = %q, want 'Z'", b)
	}
	v16, err := r.int16()
	if err != nil {
		t.Fatal(err)
	}
	if v16 != -2 {
		t.Errorf("int16 = %d, want -2", v16)
	}
	v32, err := r.int32()
	if err != nil {
		t.Fatal(err)
	}
	if v32 != 196608 {
		t.Errorf("int32 = %d, want 196608", v32)
	}
	s, err := r.cstring()
	if err != nil {
		t.Fatal(err)
	}
	if s != "application_name" {
		t.Errorf("cstring = %q", s)
	}
	if !bytes.Equal(r.remaining(), []byte{0xde, 0xad}) {
		t.Errorf("remaining = %x, want dead", r.remaining())
	}
}

func TestPayloadReader_ShortRead(t *testing.T) {
	r := newPayloadReader([]byte{0x00, 0x01})
	if _, err := r.int32(); err == nil {
		t.Fatal("expected short read error")
	} else if !strings.Contains(err.Error(), "offset 0") {
		t.Errorf("error should carry the offset, got: %v", err)
	}
}

func TestPayloadReader_UnterminatedString(t *testing.T) {
	r := newPayloadReader([]byte("no terminator"))
	if _, err := r.cstring(); err == nil {
		t.Fatal("expected unterminated string error")
	}
}

// --- startup inspection tests ---

func TestStartupRequestPredicates(t *testing.T) {
	startup := NewStartup(map[string]string{"user": "u"})
	ssl := NewSSLRequest()
	cancel := NewCancelRequest(1234, 5678)

	if !IsStartupRequest(startup) || IsStartupRequest(ssl) || IsStartupRequest(cancel) {
		t.Error("IsStartupRequest misclassified")
	}
	if !IsSSLRequest(ssl) || IsSSLRequest(startup) {
		t.Error("IsSSLRequest misclassified")
	}
	if !IsCancelRequest(cancel) || IsCancelRequest(startup) {
		t.Error("IsCancelRequest misclassified")
	}
	if IsSSLRequest(NewQuery("SELECT 1")) {
		t.Error("tagged message classified as SSLRequest")
	}
}

func TestStartupParams_Empty(t *testing.T) {
	params, err := StartupParams(NewStartup(nil).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 0 {
		t.Errorf("params = %v, want empty", params)
	}
}

func TestStartupParams_Truncated(t *testing.T) {
	if _, err := StartupParams([]byte{0x00}); err == nil {
		t.Fatal("expected error for truncated startup payload")
	}
}

// --- message inspection tests ---

func TestAuthResult(t *testing.T) {
	code, err := AuthResult(NewAuthenticationOk())
	if err != nil {
		t.Fatal(err)
	}
	if code != AuthOk {
		t.Errorf("code = %d, want AuthOk", code)
	}

	code, err = AuthResult(NewAuthenticationCleartext())
	if err != nil {
		t.Fatal(err)
	}
	if code != AuthCleartextPassword {
		t.Errorf("code = %d, want AuthCleartextPassword", code)
	}

	if _, err := AuthResult(NewQuery("SELECT 1")); err == nil {
		t.Error("expected error for non-auth message")
	}
}

func TestTxnStatus(t *testing.T) {
	status, err := TxnStatus(NewReadyForQuery(TxnStatusInBlock))
	if err != nil {
		t.Fatal(err)
	}
	if status != TxnStatusInBlock {
		t.Errorf("status = %q, want 'T'", status)
	}

	if _, err := TxnStatus(NewCommandComplete("SELECT 1")); err == nil {
		t.Error("expected error for non-ReadyForQuery message")
	}
}

func TestQueryString(t *testing.T) {
	sql, err := QueryString(NewQuery("DELETE FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if sql != "DELETE FROM orders" {
		t.Errorf("sql = %q", sql)
	}

	if _, err := QueryString(NewTerminate()); err == nil {
		t.Error("expected error for non-query message")
	}
}

func TestErrorFields(t *testing.T) {
	m := NewErrorResponse("FATAL", "57P01", "terminating connection")

	fields, err := ErrorFields(m)
	if err != nil {
		t.Fatal(err)
	}
	if fields[FieldSeverity] != "FATAL" {
		t.Errorf("severity = %q", fields[FieldSeverity])
	}
	if fields[FieldCode] != "57P01" {
		t.Errorf("code = %q", fields[FieldCode])
	}
	if fields[FieldMessage] != "terminating connection" {
		t.Errorf("message = %q", fields[FieldMessage])
	}

	if _, err := ErrorFields(NewQuery("SELECT 1")); err == nil {
		t.Error("expected error for non-error message")
	}
}

// --- constructor wire-format tests ---

func TestNewStartup_Deterministic(t *testing.T) {
	params := map[string]string{"user": "u", "database": "d", "application_name": "app"}
	a := NewStartup(params).Encode()
	b := NewStartup(params).Encode()
	if !bytes.Equal(a, b) {
		t.Error("startup encoding is not deterministic")
	}
}

func TestNewDataRow_Layout(t *testing.T) {
	m := NewDataRow([]byte("42"), nil, []byte{})

	r := newPayloadReader(m.Payload)
	count, _ := r.int16()
	if count != 3 {
		t.Fatalf("column count = %d, want 3", count)
	}
	l1, _ := r.int32()
	if l1 != 2 {
		t.Errorf("col 1 length = %d, want 2", l1)
	}
	r.pos += 2
	l2, _ := r.int32()
	if l2 != -1 {
		t.Errorf("col 2 length = %d, want -1 (NULL)", l2)
	}
	l3, _ := r.int32()
	if l3 != 0 {
		t.Errorf("col 3 length = %d, want 0", l3)
	}
	if len(r.remaining()) != 0 {
		t.Errorf("trailing bytes: %x", r.remaining())
	}
}

func TestNewRowDescription_Layout(t *testing.T) {
	m := NewRowDescription("id", "name")

	r := newPayloadReader(m.Payload)
	count, _ := r.int16()
	if count != 2 {
		t.Fatalf("field count = %d, want 2", count)
	}
	name, _ := r.cstring()
	if name != "id" {
		t.Errorf("field 1 = %q, want id", name)
	}
	// table OID, attnum, type OID, size, modifier, format
	r.int32()
	r.int16()
	typOID, _ := r.int32()
	if typOID != 25 {
		t.Errorf("type OID = %d, want 25 (text)", typOID)
	}
}

func TestNewErrorResponse_Terminated(t *testing.T) {
	m := NewErrorResponse("ERROR", "42601", "syntax error")
	if m.Payload[len(m.Payload)-1] != 0 {
		t.Error("error response payload must end with a terminator byte")
	}
}

func TestConstructorDirections(t *testing.T) {
	if NewQuery("x").Dir != FromClient {
		t.Error("Query should be client-originated")
	}
	if NewDataRow().Dir != FromServer {
		t.Error("DataRow should be server-originated")
	}
	if NewStartup(nil).Dir != FromClient {
		t.Error("Startup should be client-originated")
	}
}
