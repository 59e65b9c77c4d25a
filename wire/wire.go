// Package wire implements framing for the PostgreSQL frontend/backend
// protocol version 3.0: length-prefixed tagged messages over a byte
// stream, plus a typed builder for outbound payloads.
package wire

// Protocol version 3.0, as sent in the startup message.
const (
	ProtoVersionMajor = 3
	ProtoVersionMinor = 0
	ProtoVersion      = ProtoVersionMajor<<16 | ProtoVersionMinor

	// SSLRequest magic number (1234 << 16 | 5679).
	SSLRequestCode = 80877103

	// CancelRequest magic number (1234 << 16 | 5678).
	CancelRequestCode = 80877102
)

// Backend message tags.
const (
	MsgAuthentication        byte = 'R'
	MsgBackendKeyData        byte = 'K'
	MsgBindComplete          byte = '2'
	MsgCloseComplete         byte = '3'
	MsgCommandComplete       byte = 'C'
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

// Frontend message tags.
const (
	MsgBind      byte = 'B'
	MsgClose     byte = 'C'
	MsgDescribe  byte = 'D'
	MsgExecute   byte = 'E'
	MsgParse     byte = 'P'
	MsgPassword  byte = 'p'
	MsgQuery     byte = 'Q'
	MsgSync      byte = 'S'
	MsgTerminate byte = 'X'
)

// Authentication request codes (first int32 of an 'R' payload).
const (
	AuthOK        = 0
	AuthCleartext = 3
	AuthMD5       = 5
)

// NullLength is the field length that denotes SQL NULL in DataRow
// and Bind messages.
const NullLength = -1
