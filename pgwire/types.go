package pgwire

import (
	"fmt"
	"sort"
)

// Frontend message types (client → server).
const (
	MsgBind         byte = 'B'
	MsgClose        byte = 'C'
	MsgCopyFail     byte = 'f'
	MsgDescribe     byte = 'D'
	MsgExecute      byte = 'E'
	MsgFlush        byte = 'H'
	MsgFunctionCall byte = 'F'
	MsgParse        byte = 'P'
	MsgPasswordMsg  byte = 'p' // also carries SASL and GSS responses
	MsgQuery        byte = 'Q'
	MsgSync         byte = 'S'
	MsgTerminate    byte = 'X'
)

// Backend message types (server → client).
const (
	MsgAuthenticationRequest byte = 'R'
	MsgBackendKeyData        byte = 'K'
	MsgBindComplete          byte = '2'
	MsgCloseComplete         byte = '3'
	MsgCommandComplete       byte = 'C'
	MsgCopyBothResponse      byte = 'W'
	MsgCopyInResponse        byte = 'G'
	MsgCopyOutResponse       byte = 'H'
	MsgDataRow               byte = 'D'
	MsgEmptyQueryResponse    byte = 'I'
	MsgErrorResponse         byte = 'E'
	MsgNoData                byte = 'n'
	MsgNoticeResponse        byte = 'N'
	MsgNotificationResponse  byte = 'A'
	MsgParameterDescription  byte = 't'
	MsgParameterStatus       byte = 'S'
	MsgParseComplete         byte = '1'
	MsgPortalSuspended       byte = 's'
	MsgReadyForQuery         byte = 'Z'
	MsgRowDescription        byte = 'T'
)

// Bidirectional message types (COPY subprotocol).
const (
	MsgCopyData byte = 'd'
	MsgCopyDone byte = 'c'
)

// Authentication request codes, carried in AuthenticationRequest payloads.
const (
	AuthOk                int32 = 0
	AuthKerberosV5        int32 = 2
	AuthCleartextPassword int32 = 3
	AuthMD5Password       int32 = 5
	AuthSCMCredential     int32 = 6
	AuthGSS               int32 = 7
	AuthGSSContinue       int32 = 8
	AuthSSPI              int32 = 9
	AuthSASL              int32 = 10
	AuthSASLContinue      int32 = 11
	AuthSASLFinal         int32 = 12
)

// ReadyForQuery transaction status bytes.
const (
	TxnStatusIdle    byte = 'I'
	TxnStatusInBlock byte = 'T'
	TxnStatusFailed  byte = 'E'
)

// ErrorResponse and NoticeResponse field codes.
const (
	FieldSeverity byte = 'S'
	FieldCode     byte = 'C'
	FieldMessage  byte = 'M'
	FieldDetail   byte = 'D'
	FieldHint     byte = 'H'
)

// Startup-packet version numbers. The first int32 of an untagged frame
// selects between a real startup (protocol 3.x) and the special requests.
const (
	ProtocolVersionNumber int32 = 3 << 16 // protocol 3.0
	CancelRequestCode     int32 = (1234 << 16) | 5678
	SSLRequestCode        int32 = (1234 << 16) | 5679
	GSSENCRequestCode     int32 = (1234 << 16) | 5680
)

var frontendNames = map[byte]string{
	MsgBind:         "Bind",
	MsgClose:        "Close",
	MsgCopyData:     "CopyData",
	MsgCopyDone:     "CopyDone",
	MsgCopyFail:     "CopyFail",
	MsgDescribe:     "Describe",
	MsgExecute:      "Execute",
	MsgFlush:        "Flush",
	MsgFunctionCall: "FunctionCall",
	MsgParse:        "Parse",
	MsgPasswordMsg:  "PasswordMessage",
	MsgQuery:        "Query",
	MsgSync:         "Sync",
	MsgTerminate:    "Terminate",
}

var backendNames = map[byte]string{
	MsgAuthenticationRequest: "AuthenticationRequest",
	MsgBackendKeyData:        "BackendKeyData",
	MsgBindComplete:          "BindComplete",
	MsgCloseComplete:         "CloseComplete",
	MsgCommandComplete:       "CommandComplete",
	MsgCopyBothResponse:      "CopyBothResponse",
	MsgCopyData:              "CopyData",
	MsgCopyDone:              "CopyDone",
	MsgCopyInResponse:        "CopyInResponse",
	MsgCopyOutResponse:       "CopyOutResponse",
	MsgDataRow:               "DataRow",
	MsgEmptyQueryResponse:    "EmptyQueryResponse",
	MsgErrorResponse:         "ErrorResponse",
	MsgNoData:                "NoData",
	MsgNoticeResponse:        "NoticeResponse",
	MsgNotificationResponse:  "NotificationResponse",
	MsgParameterDescription:  "ParameterDescription",
	MsgParameterStatus:       "ParameterStatus",
	MsgParseComplete:         "ParseComplete",
	MsgPortalSuspended:       "PortalSuspended",
	MsgReadyForQuery:         "ReadyForQuery",
	MsgRowDescription:        "RowDescription",
}

var frontendTags = invertNames(frontendNames)
var backendTags = invertNames(backendNames)

func invertNames(names map[byte]string) map[string]byte {
	tags := make(map[string]byte, len(names))
	for tag, name := range names {
		tags[name] = tag
	}
	return tags
}

// TypeName returns the protocol name of a tag as seen from the given
// direction. Tags collide across directions ('D' is Describe from the client
// but DataRow from the server), so the direction is part of the lookup.
// Unknown tags format as unknown(0x..) and are still forwardable.
func TypeName(dir Direction, tag byte) string {
	var name string
	var ok bool
	if dir == FromClient {
		name, ok = frontendNames[tag]
	} else {
		name, ok = backendNames[tag]
	}
	if !ok {
		return fmt.Sprintf("unknown(0x%02x)", tag)
	}
	return name
}

// TypeByName resolves a protocol name back to its tag for the given
// direction.
func TypeByName(dir Direction, name string) (byte, bool) {
	if dir == FromClient {
		tag, ok := frontendTags[name]
		return tag, ok
	}
	tag, ok := backendTags[name]
	return tag, ok
}

// TypeNames returns every name Message.Name can report for the
// direction, sorted. FromClient includes the untagged startup frame
// names (Startup, SSLRequest, GSSENCRequest, CancelRequest), which
// only clients send.
func TypeNames(dir Direction) []string {
	var names []string
	if dir == FromClient {
		names = make([]string, 0, len(frontendNames)+4)
		for _, n := range frontendNames {
			names = append(names, n)
		}
		names = append(names, "Startup", "SSLRequest", "GSSENCRequest", "CancelRequest")
	} else {
		names = make([]string, 0, len(backendNames))
		for _, n := range backendNames {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// startupName names an untagged startup-phase frame by its version field.
func startupName(payload []byte) string {
	v, err := StartupVersion(payload)
	if err != nil {
		return "Startup"
	}
	switch v {
	case CancelRequestCode:
		return "CancelRequest"
	case SSLRequestCode:
		return "SSLRequest"
	case GSSENCRequestCode:
		return "GSSENCRequest"
	}
	return "Startup"
}
