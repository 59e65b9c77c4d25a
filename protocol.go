package pgline

import (
	"github.com/pgline/pgline/pgtype"
	"github.com/pgline/pgline/wire"
)

// simpleQuery drives the Query ('Q') request/response cycle. The
// session is positioned just past ReadyForQuery on return, success or
// server error alike; protocol and I/O failures tear the session down.
func (c *Client) simpleQuery(sql string) (*Result, error) {
	c.builder.Reset()
	c.builder.PutCString(sql)
	if err := c.sess.writeMessage(wire.MsgQuery, c.builder.Bytes()); err != nil {
		c.teardown()
		return nil, err
	}
	return c.readQueryReplies()
}

// readQueryReplies loops on reply tags until ReadyForQuery, collecting
// command tags, descriptions and rows in server order. On an
// ErrorResponse the remaining messages are drained before the error is
// surfaced, leaving the connection reusable.
func (c *Client) readQueryReplies() (*Result, error) {
	res := &Result{}
	for {
		if err := c.sess.readMessage(); err != nil {
			c.teardown()
			return nil, err
		}
		buf := &c.sess.buf
		switch buf.Tag() {
		case wire.MsgRowDescription:
			fields, err := c.parseRowDescription()
			if err != nil {
				c.teardown()
				return nil, err
			}
			res.beginSet(fields)

		case wire.MsgDataRow:
			set := res.currentSet()
			if set == nil {
				c.teardown()
				return nil, protocolErrorf("DataRow before RowDescription")
			}
			row, err := c.decodeDataRow(set.Fields)
			if err != nil {
				c.teardown()
				return nil, err
			}
			set.Rows = append(set.Rows, row)

		case wire.MsgCommandComplete:
			res.addTag(c.conv.String(buf.CString()))

		case wire.MsgEmptyQueryResponse:
			res.addTag("")

		case wire.MsgErrorResponse:
			serverErr := &ServerError{Fields: parseErrorFields(buf)}
			if err := c.drainUntilReady(); err != nil {
				return nil, err
			}
			return nil, serverErr

		case wire.MsgNoticeResponse:
			c.dispatchNotice(buf)

		case wire.MsgNotificationResponse:
			c.dispatchNotification(buf)

		case wire.MsgParameterStatus:
			// Parameters may change mid-session (e.g. SET TimeZone).
			key := string(buf.CString())
			val := string(buf.CString())
			c.sess.params[key] = val

		case wire.MsgReadyForQuery:
			return res, nil

		default:
			c.teardown()
			return nil, protocolErrorf("unexpected message %q during query", buf.Tag())
		}
	}
}

// drainUntilReady consumes messages after an error until ReadyForQuery,
// so the session stays synchronized.
func (c *Client) drainUntilReady() error {
	for {
		if err := c.sess.readMessage(); err != nil {
			c.teardown()
			return err
		}
		switch c.sess.buf.Tag() {
		case wire.MsgReadyForQuery:
			return nil
		case wire.MsgNoticeResponse:
			c.dispatchNotice(&c.sess.buf)
		case wire.MsgNotificationResponse:
			c.dispatchNotification(&c.sess.buf)
		}
	}
}

// parseRowDescription decodes a RowDescription payload into field
// descriptions.
func (c *Client) parseRowDescription() ([]pgtype.FieldDesc, error) {
	buf := &c.sess.buf
	n := int(buf.Int16())
	if n < 0 {
		return nil, protocolErrorf("negative field count in RowDescription")
	}
	fields := make([]pgtype.FieldDesc, n)
	for i := range fields {
		fields[i] = pgtype.FieldDesc{
			Name:     c.conv.String(buf.CString()),
			TableOID: buf.Uint32(),
			AttrNum:  buf.Int16(),
			TypeOID:  buf.Uint32(),
			TypeSize: buf.Int16(),
			TypeMod:  buf.Int32(),
			Format:   buf.Int16(),
		}
	}
	if err := buf.Err(); err != nil {
		return nil, protocolErrorf("malformed RowDescription: %v", err)
	}
	return fields, nil
}

// decodeDataRow decodes one DataRow against the current descriptions.
// A field length of 0xFFFFFFFF short-circuits to the NULL sentinel
// before any decoder is invoked.
func (c *Client) decodeDataRow(fields []pgtype.FieldDesc) ([]any, error) {
	buf := &c.sess.buf
	n := int(buf.Int16())
	if n != len(fields) {
		return nil, protocolErrorf("DataRow has %d fields, description has %d", n, len(fields))
	}
	row := make([]any, n)
	for i := range row {
		length := buf.Int32()
		if length == wire.NullLength {
			row[i] = pgtype.Null
			continue
		}
		data := buf.Bytes(int(length))
		if err := buf.Err(); err != nil {
			return nil, protocolErrorf("malformed DataRow: %v", err)
		}
		v, err := c.conv.Decode(data, &fields[i])
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	if err := buf.Err(); err != nil {
		return nil, protocolErrorf("malformed DataRow: %v", err)
	}
	return row, nil
}

// preparedReply is what Describe reports for a prepared statement.
type preparedReply struct {
	paramOIDs []uint32
	fields    []pgtype.FieldDesc
}

// sendParse writes the coalesced Parse | Describe | Sync sequence for
// preparing a named statement.
func (c *Client) sendParse(name, sql string) error {
	s := c.sess
	s.stamp()

	c.builder.Reset()
	c.builder.PutCString(name)
	c.builder.PutCString(sql)
	c.builder.PutInt16(0) // no pre-declared parameter types
	if err := s.w.WriteMessageNoFlush(wire.MsgParse, c.builder.Bytes()); err != nil {
		return &IoError{Op: "writing Parse", Err: err}
	}

	c.builder.Reset()
	c.builder.PutByte('S')
	c.builder.PutCString(name)
	if err := s.w.WriteMessageNoFlush(wire.MsgDescribe, c.builder.Bytes()); err != nil {
		return &IoError{Op: "writing Describe", Err: err}
	}

	if err := s.w.WriteMessageNoFlush(wire.MsgSync, nil); err != nil {
		return &IoError{Op: "writing Sync", Err: err}
	}
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flushing Parse|Describe|Sync", Err: err}
	}
	return nil
}

// readParseReplies consumes ParseComplete, ParameterDescription,
// RowDescription-or-NoData and ReadyForQuery.
func (c *Client) readParseReplies() (*preparedReply, error) {
	reply := &preparedReply{}
	sawParseComplete := false
	for {
		if err := c.sess.readMessage(); err != nil {
			c.teardown()
			return nil, err
		}
		buf := &c.sess.buf
		switch buf.Tag() {
		case wire.MsgParseComplete:
			sawParseComplete = true

		case wire.MsgParameterDescription:
			n := int(buf.Int16())
			reply.paramOIDs = make([]uint32, n)
			for i := range reply.paramOIDs {
				reply.paramOIDs[i] = buf.Uint32()
			}
			if err := buf.Err(); err != nil {
				c.teardown()
				return nil, protocolErrorf("malformed ParameterDescription: %v", err)
			}

		case wire.MsgRowDescription:
			fields, err := c.parseRowDescription()
			if err != nil {
				c.teardown()
				return nil, err
			}
			reply.fields = fields

		case wire.MsgNoData:
			reply.fields = nil

		case wire.MsgErrorResponse:
			serverErr := &ServerError{Fields: parseErrorFields(buf)}
			if err := c.drainUntilReady(); err != nil {
				return nil, err
			}
			return nil, serverErr

		case wire.MsgNoticeResponse:
			c.dispatchNotice(buf)

		case wire.MsgNotificationResponse:
			c.dispatchNotification(buf)

		case wire.MsgReadyForQuery:
			if !sawParseComplete {
				c.teardown()
				return nil, protocolErrorf("ParseComplete expected")
			}
			return reply, nil

		default:
			c.teardown()
			return nil, protocolErrorf("unexpected message %q during prepare", buf.Tag())
		}
	}
}

// sendBindExecute writes the coalesced Bind | Execute | Sync sequence
// for one invocation of a prepared statement. Parameters are sent in
// text format; results are requested in text format.
func (c *Client) sendBindExecute(name string, args []any) error {
	s := c.sess
	s.stamp()

	c.builder.Reset()
	c.builder.PutCString("") // unnamed portal
	c.builder.PutCString(name)
	c.builder.PutInt16(0) // all parameters in text format
	c.builder.PutInt16(int16(len(args)))
	for _, arg := range args {
		text, isNull, err := c.encodeParam(arg)
		if err != nil {
			return err
		}
		if isNull {
			c.builder.PutInt32(wire.NullLength)
			continue
		}
		c.builder.PutInt32(int32(len(text)))
		c.builder.PutBytes(text)
	}
	c.builder.PutInt16(0) // all results in text format
	if err := s.w.WriteMessageNoFlush(wire.MsgBind, c.builder.Bytes()); err != nil {
		return &IoError{Op: "writing Bind", Err: err}
	}

	c.builder.Reset()
	c.builder.PutCString("") // unnamed portal
	c.builder.PutInt32(0)    // no row limit
	if err := s.w.WriteMessageNoFlush(wire.MsgExecute, c.builder.Bytes()); err != nil {
		return &IoError{Op: "writing Execute", Err: err}
	}

	if err := s.w.WriteMessageNoFlush(wire.MsgSync, nil); err != nil {
		return &IoError{Op: "writing Sync", Err: err}
	}
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flushing Bind|Execute|Sync", Err: err}
	}
	return nil
}

// readExecuteReplies consumes BindComplete, DataRows, CommandComplete
// (or PortalSuspended) and ReadyForQuery.
func (c *Client) readExecuteReplies(fields []pgtype.FieldDesc) (*Result, error) {
	res := &Result{}
	if fields != nil {
		res.beginSet(fields)
	}
	sawBindComplete := false
	for {
		if err := c.sess.readMessage(); err != nil {
			c.teardown()
			return nil, err
		}
		buf := &c.sess.buf
		switch buf.Tag() {
		case wire.MsgBindComplete:
			sawBindComplete = true

		case wire.MsgDataRow:
			if !sawBindComplete {
				c.teardown()
				return nil, protocolErrorf("BindComplete expected")
			}
			set := res.currentSet()
			if set == nil {
				c.teardown()
				return nil, protocolErrorf("DataRow for a statement with no row description")
			}
			row, err := c.decodeDataRow(set.Fields)
			if err != nil {
				c.teardown()
				return nil, err
			}
			set.Rows = append(set.Rows, row)

		case wire.MsgCommandComplete:
			res.addTag(c.conv.String(buf.CString()))

		case wire.MsgPortalSuspended:
			// Limited fetch finished without completing the portal.
			res.addTag("")

		case wire.MsgEmptyQueryResponse:
			res.addTag("")

		case wire.MsgErrorResponse:
			serverErr := &ServerError{Fields: parseErrorFields(buf)}
			if err := c.drainUntilReady(); err != nil {
				return nil, err
			}
			return nil, serverErr

		case wire.MsgNoticeResponse:
			c.dispatchNotice(buf)

		case wire.MsgNotificationResponse:
			c.dispatchNotification(buf)

		case wire.MsgReadyForQuery:
			if !sawBindComplete {
				c.teardown()
				return nil, protocolErrorf("BindComplete expected")
			}
			return res, nil

		default:
			c.teardown()
			return nil, protocolErrorf("unexpected message %q during execute", buf.Tag())
		}
	}
}

// sendCloseStatement writes Close('S', name) | Sync releasing a
// server-side prepared statement.
func (c *Client) sendCloseStatement(name string) error {
	s := c.sess
	s.stamp()

	c.builder.Reset()
	c.builder.PutByte('S')
	c.builder.PutCString(name)
	if err := s.w.WriteMessageNoFlush(wire.MsgClose, c.builder.Bytes()); err != nil {
		return &IoError{Op: "writing Close", Err: err}
	}
	if err := s.w.WriteMessageNoFlush(wire.MsgSync, nil); err != nil {
		return &IoError{Op: "writing Sync", Err: err}
	}
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flushing Close|Sync", Err: err}
	}

	for {
		if err := c.sess.readMessage(); err != nil {
			c.teardown()
			return err
		}
		buf := &c.sess.buf
		switch buf.Tag() {
		case wire.MsgCloseComplete:
		case wire.MsgNoticeResponse:
			c.dispatchNotice(buf)
		case wire.MsgNotificationResponse:
			c.dispatchNotification(buf)
		case wire.MsgErrorResponse:
			serverErr := &ServerError{Fields: parseErrorFields(buf)}
			if err := c.drainUntilReady(); err != nil {
				return err
			}
			return serverErr
		case wire.MsgReadyForQuery:
			return nil
		default:
			c.teardown()
			return protocolErrorf("unexpected message %q during close", buf.Tag())
		}
	}
}

func (c *Client) dispatchNotice(buf *wire.ReadBuffer) {
	notice := &Notice{Fields: parseErrorFields(buf)}
	if c.noticeHandler != nil {
		c.noticeHandler(notice)
	}
}

func (c *Client) dispatchNotification(buf *wire.ReadBuffer) {
	n := &Notification{
		PID:     buf.Uint32(),
		Channel: c.conv.String(buf.CString()),
		Payload: c.conv.String(buf.CString()),
	}
	if buf.Err() != nil {
		return
	}
	if c.notificationHandler != nil {
		c.notificationHandler(n)
	}
}
