package pgline

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/pgline/pgline/wire"
)

// Session is one serial connection to a backend: the socket, the
// reusable inbound message buffer, and the state reported by the server
// during startup. A session is never shared between executors.
type Session struct {
	conn net.Conn
	r    *bufio.Reader
	w    *wire.Writer
	buf  wire.ReadBuffer

	backendPID uint32
	secretKey  uint32
	params     map[string]string

	connected bool
	ssl       bool
	timeout   time.Duration
}

func newSession(timeout time.Duration) *Session {
	return &Session{
		params:  make(map[string]string),
		timeout: timeout,
	}
}

// open dials the server. The socket is plain TCP; upgradeSSL may
// replace it with a TLS stream before startup.
func (s *Session) open(ctx context.Context, opts *Options) error {
	addr := net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port))
	dial := opts.DialFunc
	if dial == nil {
		dialer := net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}
		dial = dialer.DialContext
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return &IoError{Op: "dial " + addr, Err: err}
	}
	s.setConn(conn)
	return nil
}

func (s *Session) setConn(conn net.Conn) {
	s.conn = conn
	s.r = bufio.NewReader(conn)
	s.w = wire.NewWriter(conn)
}

// upgradeSSL performs the SSLRequest preamble. The server answers with
// a single bare byte: 'S' to proceed with a TLS handshake, anything
// else is a refusal.
func (s *Session) upgradeSSL(opts *Options) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(wire.SSLRequestCode))

	s.stamp()
	if err := s.w.WriteStartup(payload[:]); err != nil {
		return &IoError{Op: "writing SSLRequest", Err: err}
	}
	reply, err := wire.ReadSSLResponse(s.r)
	if err != nil {
		return &IoError{Op: "reading SSLRequest reply", Err: err}
	}
	if reply != 'S' {
		return &SSLError{msg: "SSL not honored"}
	}

	tlsCfg := opts.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: opts.Host}
	}
	tlsConn := tls.Client(s.conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return &SSLError{msg: "TLS handshake failed", err: err}
	}
	s.setConn(tlsConn)
	s.ssl = true
	return nil
}

// startup sends the startup message and drives the authentication state
// machine until ReadyForQuery. Only cleartext (3) and MD5 (5) password
// challenges are supported; any other non-zero code fails the session.
func (s *Session) startup(opts *Options) error {
	// Some servers in some modes omit BackendKeyData, so the session id
	// is seeded with a non-zero placeholder; ReadyForQuery alone is
	// enough to consider the session connected.
	s.backendPID = rand.Uint32() | 1

	b := wire.NewBuilder(nil)
	b.PutInt32(wire.ProtoVersion)
	b.PutCString("user")
	b.PutCString(opts.User)
	if opts.Database != "" {
		b.PutCString("database")
		b.PutCString(opts.Database)
	}
	b.PutByte(0)

	s.stamp()
	if err := s.w.WriteStartup(b.Bytes()); err != nil {
		return &IoError{Op: "writing startup message", Err: err}
	}

	for {
		if err := s.readMessage(); err != nil {
			return err
		}
		switch s.buf.Tag() {
		case wire.MsgAuthentication:
			code := s.buf.Int32()
			if err := s.buf.Err(); err != nil {
				return protocolErrorf("malformed authentication request: %v", err)
			}
			switch code {
			case wire.AuthOK:
				// fall through to the next message
			case wire.AuthCleartext:
				if opts.Password == "" {
					return configErrorf("server requests a password but none is configured")
				}
				if err := s.writePassword(opts.Password); err != nil {
					return err
				}
			case wire.AuthMD5:
				if opts.Password == "" {
					return configErrorf("server requests a password but none is configured")
				}
				salt := s.buf.Bytes(4)
				if err := s.buf.Err(); err != nil {
					return protocolErrorf("malformed MD5 authentication request: %v", err)
				}
				if err := s.writePassword(md5Password(opts.User, opts.Password, salt)); err != nil {
					return err
				}
			default:
				return configErrorf("unsupported authentication code %d", code)
			}

		case wire.MsgParameterStatus:
			key := string(s.buf.CString())
			val := string(s.buf.CString())
			if err := s.buf.Err(); err != nil {
				return protocolErrorf("malformed parameter status: %v", err)
			}
			s.params[key] = val

		case wire.MsgBackendKeyData:
			s.backendPID = s.buf.Uint32()
			s.secretKey = s.buf.Uint32()
			if err := s.buf.Err(); err != nil {
				return protocolErrorf("malformed backend key data: %v", err)
			}

		case wire.MsgReadyForQuery:
			s.connected = true
			slog.Debug("session ready",
				"pid", s.backendPID,
				"server_version", s.params["server_version"],
				"encoding", s.params["client_encoding"])
			return nil

		case wire.MsgErrorResponse:
			// The server closes its end after a startup error.
			return &ServerError{Fields: parseErrorFields(&s.buf)}

		case wire.MsgNoticeResponse:
			// Informational only; drained without a handler during startup.

		default:
			return protocolErrorf("unexpected message %q during startup", s.buf.Tag())
		}
	}
}

// writePassword sends a PasswordMessage containing pw as a C-string.
func (s *Session) writePassword(pw string) error {
	payload := append([]byte(pw), 0)
	s.stamp()
	if err := s.w.WriteMessage(wire.MsgPassword, payload); err != nil {
		return &IoError{Op: "writing password message", Err: err}
	}
	return nil
}

// md5Password computes "md5" + hex(md5(hex(md5(password + user)) + salt)).
func md5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}

// stamp arms the I/O deadline for the next read or write.
func (s *Session) stamp() {
	if s.timeout > 0 {
		s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
}

// readMessage refills the session's message buffer with the next
// inbound message.
func (s *Session) readMessage() error {
	s.stamp()
	if err := s.buf.ReadFrom(s.r); err != nil {
		return &IoError{Op: "reading message", Err: err}
	}
	return nil
}

// writeMessage frames and flushes one outbound message.
func (s *Session) writeMessage(tag byte, payload []byte) error {
	s.stamp()
	if err := s.w.WriteMessage(tag, payload); err != nil {
		return &IoError{Op: fmt.Sprintf("writing %q message", tag), Err: err}
	}
	return nil
}

// close terminates the session: a best-effort Terminate message, then
// the socket. Safe to call on an already-closed session.
func (s *Session) close() error {
	if s.conn == nil {
		return nil
	}
	if s.connected {
		s.stamp()
		s.w.WriteMessage(wire.MsgTerminate, nil)
	}
	err := s.conn.Close()
	s.conn = nil
	s.connected = false
	return err
}

// isConnected reports whether the session reached ReadyForQuery and the
// socket has not been torn down. The backend PID is always non-zero
// here thanks to the startup placeholder.
func (s *Session) isConnected() bool {
	return s.conn != nil && s.connected && s.backendPID != 0
}

// Parameter returns a server-reported parameter such as
// "server_version" or "TimeZone".
func (s *Session) Parameter(name string) string { return s.params[name] }

// ServerVersion returns the server_version parameter.
func (s *Session) ServerVersion() string { return s.params["server_version"] }

// BackendPID returns the backend process id (the session id).
func (s *Session) BackendPID() uint32 { return s.backendPID }

// SSL reports whether the stream was upgraded to TLS.
func (s *Session) SSL() bool { return s.ssl }

// cancel opens a second short-lived connection and sends a
// CancelRequest for this session's backend using the stored PID and
// secret key. The server never replies on that connection.
func (s *Session) cancel(ctx context.Context, opts *Options) error {
	addr := net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port))
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &IoError{Op: "dial for cancel", Err: err}
	}
	defer conn.Close()

	b := wire.NewBuilder(nil)
	b.PutInt32(wire.CancelRequestCode)
	b.PutInt32(int32(s.backendPID))
	b.PutInt32(int32(s.secretKey))
	w := wire.NewWriter(conn)
	if err := w.WriteStartup(b.Bytes()); err != nil {
		return &IoError{Op: "writing cancel request", Err: err}
	}
	return nil
}

// parseErrorFields decodes the (field-type, C-string) pairs of an
// ErrorResponse or NoticeResponse payload.
func parseErrorFields(buf *wire.ReadBuffer) map[byte]string {
	fields := make(map[byte]string)
	for {
		ft := buf.Byte()
		if ft == 0 || buf.Err() != nil {
			return fields
		}
		fields[ft] = string(buf.CString())
		if buf.Err() != nil {
			return fields
		}
	}
}
