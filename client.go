// Package pgline is a lightweight PostgreSQL client speaking the
// frontend/backend wire protocol version 3.0. A Client owns exactly
// one serial session; queries, prepared statements and formatted
// statements all run through it one at a time.
package pgline

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pgline/pgline/pgtype"
	"github.com/pgline/pgline/wire"
)

// Client is the public query surface. Concurrent calls from independent
// goroutines serialize on an internal mutex; a connection represents
// exactly one serial session.
type Client struct {
	mu      sync.Mutex
	opts    Options
	sess    *Session
	conv    *pgtype.Converter
	builder *wire.Builder

	noticeHandler       func(*Notice)
	notificationHandler func(*Notification)
}

// New builds a client from a psql:// connection URL. No connection is
// made until the first query or an explicit Connect.
func New(rawURL string) (*Client, error) {
	opts, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(opts), nil
}

// NewWithOptions builds a client from explicit options.
func NewWithOptions(opts Options) *Client {
	opts.applyDefaults()
	return &Client{opts: opts}
}

// OnNotice installs a handler for server notices. Notices never
// interrupt protocol flow.
func (c *Client) OnNotice(fn func(*Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noticeHandler = fn
}

// OnNotification installs a handler for asynchronous LISTEN/NOTIFY
// frames. Without a handler, notifications are dropped.
func (c *Client) OnNotification(fn func(*Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationHandler = fn
}

// Connect opens and authenticates the session without SSL.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx, false)
}

// ConnectSSL opens the session with the SSLRequest/TLS upgrade before
// startup.
func (c *Client) ConnectSSL(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx, true)
}

func (c *Client) connect(ctx context.Context, ssl bool) error {
	if c.sess != nil && c.sess.isConnected() {
		return nil
	}
	if c.opts.User == "" {
		return configErrorf("user is required")
	}

	sess := newSession(c.opts.Timeout)
	if err := sess.open(ctx, &c.opts); err != nil {
		return err
	}
	if ssl || c.opts.SSL {
		if err := sess.upgradeSSL(&c.opts); err != nil {
			sess.close()
			return err
		}
		c.opts.SSL = true
	}
	if err := sess.startup(&c.opts); err != nil {
		sess.close()
		return err
	}

	c.sess = sess
	c.conv = pgtype.NewConverter(sess.params)
	c.builder = wire.NewBuilder(c.conv.EncodeString)
	return nil
}

// ensure lazily opens the session, reconnecting after a Close or a
// fatal error.
func (c *Client) ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &IoError{Op: "context", Err: err}
	}
	return c.connect(ctx, c.opts.SSL)
}

// teardown closes the session after a fatal error, so the next call
// reconnects from scratch. No Terminate is attempted: the stream has
// lost synchronization.
func (c *Client) teardown() {
	if c.sess != nil {
		c.sess.connected = false
		c.sess.close()
		c.sess = nil
	}
}

// Close terminates the session (best-effort Terminate, then the
// socket). The client can be reused; the next query reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	err := c.sess.close()
	c.sess = nil
	return err
}

// Connected reports whether the session is open and past startup.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.isConnected()
}

// SSL reports whether the current session runs over TLS.
func (c *Client) SSL() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.SSL()
}

// ServerVersion returns the server_version reported during startup, or
// "" when not connected.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.ServerVersion()
}

// Parameter returns a server-reported parameter, or "" when not
// connected.
func (c *Client) Parameter(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.Parameter(name)
}

// Query runs a simple query (one or more SQL statements) and returns
// the aggregated result. Opens and authenticates lazily.
func (c *Client) Query(ctx context.Context, sql string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	return c.simpleQuery(sql)
}

// Exec runs a simple query and returns only its command tags.
func (c *Client) Exec(ctx context.Context, sql string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	res, err := c.simpleQuery(sql)
	if err != nil {
		return nil, err
	}
	return res.Tags(), nil
}

// Prepare creates a server-side prepared statement. The name defaults
// to one derived from the SQL, hashed down when the SQL exceeds the
// 63-byte identifier limit.
func (c *Client) Prepare(ctx context.Context, sql string, name ...string) (*PreparedStatement, error) {
	stmtName := ""
	if len(name) > 0 {
		stmtName = name[0]
	}
	if stmtName == "" {
		stmtName = statementName(sql)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	if err := c.sendParse(stmtName, sql); err != nil {
		c.teardown()
		return nil, err
	}
	reply, err := c.readParseReplies()
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{
		client:    c,
		name:      stmtName,
		paramOIDs: reply.paramOIDs,
		fields:    reply.fields,
	}, nil
}

// Format builds a client-side statement that substitutes $1, $2, ...
// placeholders by quoting values. For server-side typed binding use
// Prepare instead.
func (c *Client) Format(template string) *FormattedStatement {
	return &FormattedStatement{client: c, template: template}
}

// IsWorking probes the session with SELECT {n} AS N for a random n and
// reports whether the command tag is SELECT 1 and the first field of
// the first row equals n. Any error makes the probe false.
func (c *Client) IsWorking(ctx context.Context) bool {
	n := rand.Int31n(1_000_000) + 1
	res, err := c.Query(ctx, fmt.Sprintf("SELECT %d AS N", n))
	if err != nil {
		return false
	}
	if res.Tag() != "SELECT 1" {
		return false
	}
	v, ok := res.First().(int32)
	return ok && v == n
}

// Cancel issues a CancelRequest for the in-flight query over a second
// short-lived connection, using the PID and secret key captured at
// startup. Best-effort: the server is free to ignore it.
func (c *Client) Cancel(ctx context.Context) error {
	// Deliberately not holding c.mu: the point is to interrupt an
	// operation that holds it.
	sess := c.sess
	if sess == nil || !sess.isConnected() {
		return configErrorf("not connected")
	}
	return sess.cancel(ctx, &c.opts)
}

// statementName derives a server-side statement name from the SQL.
// Names beyond 63 bytes would be truncated by the server, so long SQL
// is shortened and suffixed with a hash of the full text to keep
// distinct statements distinct.
func statementName(sql string) string {
	if len(sql) <= 63 {
		return sql
	}
	sum := xxhash.Sum64String(sql)
	var h [8]byte
	for i := range h {
		h[i] = byte(sum >> (56 - 8*i))
	}
	return sql[:63-17] + "_" + hex.EncodeToString(h[:])
}

// encodeParam converts a Go value to its text-format wire bytes for
// Bind. The bool return marks SQL NULL.
func (c *Client) encodeParam(v any) ([]byte, bool, error) {
	switch x := v.(type) {
	case nil:
		return nil, true, nil
	case string:
		return c.conv.EncodeString(x), false, nil
	case []byte:
		return []byte(`\x` + hex.EncodeToString(x)), false, nil
	case bool:
		if x {
			return []byte("t"), false, nil
		}
		return []byte("f"), false, nil
	case int:
		return strconv.AppendInt(nil, int64(x), 10), false, nil
	case int16:
		return strconv.AppendInt(nil, int64(x), 10), false, nil
	case int32:
		return strconv.AppendInt(nil, int64(x), 10), false, nil
	case int64:
		return strconv.AppendInt(nil, x, 10), false, nil
	case float32:
		return strconv.AppendFloat(nil, float64(x), 'g', -1, 32), false, nil
	case float64:
		return strconv.AppendFloat(nil, x, 'g', -1, 64), false, nil
	case time.Time:
		return []byte(x.Format("2006-01-02 15:04:05.999999-07:00")), false, nil
	case uuid.UUID:
		return []byte(x.String()), false, nil
	case decimal.Decimal:
		return []byte(x.String()), false, nil
	case pgtype.Point:
		return []byte(x.String()), false, nil
	case fmt.Stringer:
		return c.conv.EncodeString(x.String()), false, nil
	default:
		if pgtype.IsNull(v) {
			return nil, true, nil
		}
		return nil, false, configErrorf("cannot encode parameter of type %T", v)
	}
}
