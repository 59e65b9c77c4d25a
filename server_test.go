package pgline

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pgline/pgline/wire"
)

// fakeServer scripts the backend half of a net.Pipe so protocol tests
// can drive exact message sequences.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	w    *wire.Writer
	buf  wire.ReadBuffer
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	return &fakeServer{
		t:    t,
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    wire.NewWriter(conn),
	}
}

// startClient returns a client whose dial lands on the fake server's
// pipe end.
func startClient(t *testing.T, mutate ...func(*Options)) (*Client, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() {
		clientEnd.Close()
		serverEnd.Close()
	})

	opts := Options{
		User:    "u",
		Host:    "fake",
		Timeout: 5 * time.Second,
		DialFunc: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return clientEnd, nil
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return NewWithOptions(opts), newFakeServer(t, serverEnd)
}

// script runs the server side in a goroutine; the returned channel
// closes when the script finishes.
func (s *fakeServer) script(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.conn.SetDeadline(time.Now().Add(5 * time.Second))
		fn()
	}()
	return done
}

// --- inbound (client -> server) ---

// readStartup consumes the untagged startup message and returns its
// parameters.
func (s *fakeServer) readStartup() map[string]string {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		s.t.Errorf("reading startup length: %v", err)
		return nil
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:])) - 4
	body := make([]byte, n)
	if _, err := io.ReadFull(s.r, body); err != nil {
		s.t.Errorf("reading startup body: %v", err)
		return nil
	}
	if got := binary.BigEndian.Uint32(body[:4]); got != wire.ProtoVersion {
		s.t.Errorf("startup protocol version = %#x, want %#x", got, wire.ProtoVersion)
	}
	params := make(map[string]string)
	data := body[4:]
	for len(data) > 1 {
		keyEnd := 0
		for keyEnd < len(data) && data[keyEnd] != 0 {
			keyEnd++
		}
		key := string(data[:keyEnd])
		data = data[keyEnd+1:]
		valEnd := 0
		for valEnd < len(data) && data[valEnd] != 0 {
			valEnd++
		}
		params[key] = string(data[:valEnd])
		data = data[valEnd+1:]
	}
	return params
}

// readSSLRequest consumes the 8-byte SSLRequest preamble.
func (s *fakeServer) readSSLRequest() {
	var raw [8]byte
	if _, err := io.ReadFull(s.r, raw[:]); err != nil {
		s.t.Errorf("reading SSLRequest: %v", err)
		return
	}
	if binary.BigEndian.Uint32(raw[:4]) != 8 ||
		binary.BigEndian.Uint32(raw[4:]) != wire.SSLRequestCode {
		s.t.Errorf("malformed SSLRequest: % x", raw)
	}
}

// expect reads the next tagged message and checks its tag. The payload
// stays available through the typed readers.
func (s *fakeServer) expect(tag byte) {
	if err := s.buf.ReadFrom(s.r); err != nil {
		s.t.Errorf("reading message (want %q): %v", tag, err)
		return
	}
	if s.buf.Tag() != tag {
		s.t.Errorf("message tag = %q, want %q", s.buf.Tag(), tag)
	}
}

func (s *fakeServer) cstring() string {
	return string(s.buf.CString())
}

// --- outbound (server -> client) ---

func (s *fakeServer) send(tag byte, payload []byte) {
	if err := s.w.WriteMessage(tag, payload); err != nil {
		s.t.Errorf("sending %q: %v", tag, err)
	}
}

func (s *fakeServer) auth(code int32, extra ...byte) {
	b := wire.NewBuilder(nil)
	b.PutInt32(code)
	b.PutBytes(extra)
	s.send(wire.MsgAuthentication, b.Bytes())
}

func (s *fakeServer) paramStatus(key, val string) {
	b := wire.NewBuilder(nil)
	b.PutCString(key)
	b.PutCString(val)
	s.send(wire.MsgParameterStatus, b.Bytes())
}

func (s *fakeServer) keyData(pid, key uint32) {
	b := wire.NewBuilder(nil)
	b.PutInt32(int32(pid))
	b.PutInt32(int32(key))
	s.send(wire.MsgBackendKeyData, b.Bytes())
}

func (s *fakeServer) ready() {
	s.send(wire.MsgReadyForQuery, []byte{'I'})
}

// acceptStartup performs the server half of a password-less startup.
func (s *fakeServer) acceptStartup(params map[string]string, sendKey bool) {
	s.readStartup()
	s.auth(wire.AuthOK)
	for k, v := range params {
		s.paramStatus(k, v)
	}
	if sendKey {
		s.keyData(4242, 9999)
	}
	s.ready()
}

type col struct {
	name string
	oid  uint32
}

func (s *fakeServer) rowDesc(cols ...col) {
	b := wire.NewBuilder(nil)
	b.PutInt16(int16(len(cols)))
	for _, c := range cols {
		b.PutCString(c.name)
		b.PutInt32(0)  // table OID
		b.PutInt16(0)  // attribute number
		b.PutInt32(int32(c.oid))
		b.PutInt16(-1) // variable size
		b.PutInt32(-1) // type modifier
		b.PutInt16(0)  // text format
	}
	s.send(wire.MsgRowDescription, b.Bytes())
}

// dataRow sends one row; nil values become NULL.
func (s *fakeServer) dataRow(vals ...any) {
	b := wire.NewBuilder(nil)
	b.PutInt16(int16(len(vals)))
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
			b.PutInt32(wire.NullLength)
		case string:
			b.PutInt32(int32(len(x)))
			b.PutString(x)
		case []byte:
			b.PutInt32(int32(len(x)))
			b.PutBytes(x)
		default:
			s.t.Errorf("dataRow: unsupported value %T", v)
		}
	}
	s.send(wire.MsgDataRow, b.Bytes())
}

func (s *fakeServer) cmdComplete(tag string) {
	b := wire.NewBuilder(nil)
	b.PutCString(tag)
	s.send(wire.MsgCommandComplete, b.Bytes())
}

func (s *fakeServer) emptyQuery() {
	s.send(wire.MsgEmptyQueryResponse, nil)
}

func (s *fakeServer) errFields(fields map[byte]string, tag byte) {
	b := wire.NewBuilder(nil)
	for ft, val := range fields {
		b.PutByte(ft)
		b.PutCString(val)
	}
	b.PutByte(0)
	s.send(tag, b.Bytes())
}

func (s *fakeServer) errResp(fields map[byte]string) {
	s.errFields(fields, wire.MsgErrorResponse)
}

func (s *fakeServer) notice(fields map[byte]string) {
	s.errFields(fields, wire.MsgNoticeResponse)
}

func (s *fakeServer) notification(pid uint32, channel, payload string) {
	b := wire.NewBuilder(nil)
	b.PutInt32(int32(pid))
	b.PutCString(channel)
	b.PutCString(payload)
	s.send(wire.MsgNotificationResponse, b.Bytes())
}

func (s *fakeServer) parseComplete()   { s.send(wire.MsgParseComplete, nil) }
func (s *fakeServer) bindComplete()    { s.send(wire.MsgBindComplete, nil) }
func (s *fakeServer) closeComplete()   { s.send(wire.MsgCloseComplete, nil) }
func (s *fakeServer) noData()          { s.send(wire.MsgNoData, nil) }
func (s *fakeServer) portalSuspended() { s.send(wire.MsgPortalSuspended, nil) }

func (s *fakeServer) paramDesc(oids ...uint32) {
	b := wire.NewBuilder(nil)
	b.PutInt16(int16(len(oids)))
	for _, oid := range oids {
		b.PutInt32(int32(oid))
	}
	s.send(wire.MsgParameterDescription, b.Bytes())
}
