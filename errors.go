package pgline

import "fmt"

// Error-field codes used in ErrorResponse and NoticeResponse payloads.
const (
	fieldSeverity = 'S'
	fieldCode     = 'C'
	fieldMessage  = 'M'
	fieldDetail   = 'D'
	fieldHint     = 'H'
	fieldPosition = 'P'
	fieldWhere    = 'W'
)

// ConfigError reports invalid or missing client configuration: a bad
// URL scheme, a missing password, an unsupported authentication code.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "pgline: " + e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IoError wraps a stream-level failure: read/write errors, unexpected
// EOF, timeouts. IoErrors are fatal to the session.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return "pgline: " + e.Op + ": " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// ProtocolError reports an unexpected message tag at some point in a
// state machine. ProtocolErrors are fatal to the session.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "pgline: protocol error: " + e.msg }

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// SSLError reports a refused SSLRequest or a failed TLS handshake.
type SSLError struct {
	msg string
	err error
}

func (e *SSLError) Error() string {
	if e.err != nil {
		return "pgline: " + e.msg + ": " + e.err.Error()
	}
	return "pgline: " + e.msg
}

func (e *SSLError) Unwrap() error { return e.err }

// ServerError is any ErrorResponse from the backend. It carries the
// full field map; Message and SQLState expose the common fields.
type ServerError struct {
	Fields map[byte]string
}

func (e *ServerError) Error() string {
	msg := e.Fields[fieldMessage]
	if msg == "" {
		msg = "unknown server error"
	}
	if code := e.Fields[fieldCode]; code != "" {
		return fmt.Sprintf("pgline: %s: %s (SQLSTATE %s)", e.Severity(), msg, code)
	}
	return "pgline: " + msg
}

// Message returns the human-readable message field.
func (e *ServerError) Message() string { return e.Fields[fieldMessage] }

// SQLState returns the five-character SQLSTATE code.
func (e *ServerError) SQLState() string { return e.Fields[fieldCode] }

// Severity returns the severity field (ERROR, FATAL, PANIC).
func (e *ServerError) Severity() string {
	if s := e.Fields[fieldSeverity]; s != "" {
		return s
	}
	return "ERROR"
}

// Detail returns the optional detail field.
func (e *ServerError) Detail() string { return e.Fields[fieldDetail] }

// Hint returns the optional hint field.
func (e *ServerError) Hint() string { return e.Fields[fieldHint] }

// Notice is a NoticeResponse: surfaced to the notice handler, never
// interrupting protocol flow.
type Notice struct {
	Fields map[byte]string
}

// Message returns the human-readable message field.
func (n *Notice) Message() string { return n.Fields[fieldMessage] }

// Severity returns the severity field (NOTICE, WARNING, INFO, ...).
func (n *Notice) Severity() string { return n.Fields[fieldSeverity] }

// Notification is an asynchronous LISTEN/NOTIFY frame.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}
