package pgline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/pgline/pgline/pgtype"
	"github.com/pgline/pgline/wire"
)

func TestStatementNameShortSQL(t *testing.T) {
	sql := "SELECT 1"
	if got := statementName(sql); got != sql {
		t.Errorf("statementName = %q", got)
	}
}

func TestStatementNameLongSQL(t *testing.T) {
	sql := "SELECT " + strings.Repeat("x", 100)
	name := statementName(sql)
	if len(name) > 63 {
		t.Fatalf("name is %d bytes, want <= 63", len(name))
	}
	if !strings.HasPrefix(sql, name[:46]) {
		t.Errorf("name prefix %q does not derive from the SQL", name[:46])
	}
	if name[46] != '_' {
		t.Errorf("separator missing: %q", name)
	}
}

func TestStatementNameDistinctForDistinctSQL(t *testing.T) {
	a := "SELECT a FROM t WHERE " + strings.Repeat("a = 1 AND ", 20) + "TRUE"
	b := "SELECT b FROM t WHERE " + strings.Repeat("a = 1 AND ", 20) + "TRUE"
	if statementName(a) == statementName(b) {
		t.Error("distinct long SQL produced colliding names")
	}
	// A 64-byte statement gets hashed; a 63-byte one does not.
	at63 := strings.Repeat("s", 63)
	at64 := strings.Repeat("s", 64)
	if statementName(at63) != at63 {
		t.Error("63-byte SQL should be its own name")
	}
	if n := statementName(at64); len(n) != 63 {
		t.Errorf("64-byte SQL hashed to %d bytes", len(n))
	}
}

func TestFormatBindQuoting(t *testing.T) {
	c := NewWithOptions(Options{User: "u"})
	fs := c.Format("INSERT INTO t VALUES ($1, $2, $3, $4, $5)")

	sql, err := fs.Bind("o'neill", 42, true, nil, []byte{0xca, 0xfe})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	want := `INSERT INTO t VALUES ('o''neill', 42, TRUE, NULL, '\xcafe')`
	if sql != want {
		t.Errorf("sql = %s, want %s", sql, want)
	}
}

func TestFormatBindBackslash(t *testing.T) {
	c := NewWithOptions(Options{User: "u"})
	sql, err := c.Format("SELECT $1").Bind(`a\b'c`)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if sql != `SELECT E'a\\b''c'` {
		t.Errorf("sql = %s", sql)
	}
}

func TestFormatBindMissingArgument(t *testing.T) {
	c := NewWithOptions(Options{User: "u"})
	_, err := c.Format("SELECT $1, $2").Bind("only one")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestExecReturnsTags(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgQuery)
		srv.cmdComplete("INSERT 0 1")
		srv.cmdComplete("INSERT 0 1")
		srv.ready()
	})

	tags, err := c.Exec(context.Background(), "INSERT INTO t VALUES (1); INSERT INTO t VALUES (2);")
	<-done
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(tags) != 2 || tags[0] != "INSERT 0 1" {
		t.Errorf("tags = %v", tags)
	}
}

func TestIsWorking(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgQuery)
		sql := srv.cstring()
		// SELECT {n} AS N
		numStr := strings.TrimSuffix(strings.TrimPrefix(sql, "SELECT "), " AS N")
		if _, err := strconv.Atoi(numStr); err != nil {
			t.Errorf("probe query = %q", sql)
		}
		srv.rowDesc(col{"N", pgtype.Int4OID})
		srv.dataRow(numStr)
		srv.cmdComplete("SELECT 1")
		srv.ready()
	})

	if !c.IsWorking(context.Background()) {
		t.Error("IsWorking = false for a well-behaved server")
	}
	<-done
}

func TestIsWorkingWrongAnswer(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgQuery)
		srv.rowDesc(col{"N", pgtype.Int4OID})
		srv.dataRow("0") // never matches: probe n is >= 1
		srv.cmdComplete("SELECT 1")
		srv.ready()
	})

	if c.IsWorking(context.Background()) {
		t.Error("IsWorking = true although the row does not echo n")
	}
	<-done
}

func TestPrepareAndExec(t *testing.T) {
	const sql = "SELECT $1::int + $2::int"
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)

		srv.expect(wire.MsgParse)
		if got := srv.cstring(); got != sql {
			t.Errorf("statement name = %q", got)
		}
		if got := srv.cstring(); got != sql {
			t.Errorf("statement SQL = %q", got)
		}
		srv.expect(wire.MsgDescribe)
		if kind := srv.buf.Byte(); kind != 'S' {
			t.Errorf("describe kind = %q", kind)
		}
		srv.expect(wire.MsgSync)
		srv.parseComplete()
		srv.paramDesc(pgtype.Int4OID, pgtype.Int4OID)
		srv.rowDesc(col{"?column?", pgtype.Int4OID})
		srv.ready()

		for _, sum := range []struct{ a, b, result string }{
			{"2", "3", "5"},
			{"10", "20", "30"},
		} {
			srv.expect(wire.MsgBind)
			srv.cstring() // portal
			srv.cstring() // statement name
			srv.buf.Int16()
			if n := srv.buf.Int16(); n != 2 {
				t.Errorf("bind param count = %d", n)
			}
			a := string(srv.buf.Bytes(int(srv.buf.Int32())))
			b := string(srv.buf.Bytes(int(srv.buf.Int32())))
			if a != sum.a || b != sum.b {
				t.Errorf("bound params = %q, %q", a, b)
			}
			srv.expect(wire.MsgExecute)
			srv.expect(wire.MsgSync)
			srv.bindComplete()
			srv.dataRow(sum.result)
			srv.cmdComplete("SELECT 1")
			srv.ready()
		}

		srv.expect(wire.MsgClose)
		if kind := srv.buf.Byte(); kind != 'S' {
			t.Errorf("close kind = %q", kind)
		}
		srv.expect(wire.MsgSync)
		srv.closeComplete()
		srv.ready()
	})

	ctx := context.Background()
	ps, err := c.Prepare(ctx, sql)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := ps.ParamOIDs(); len(got) != 2 {
		t.Fatalf("param OIDs = %v", got)
	}

	res, err := ps.Exec(ctx, 2, 3)
	if err != nil {
		t.Fatalf("Exec(2,3): %v", err)
	}
	if res.Rows()[0][0] != int32(5) {
		t.Errorf("2+3 = %v", res.Rows()[0][0])
	}

	res, err = ps.Exec(ctx, 10, 20)
	if err != nil {
		t.Fatalf("Exec(10,20): %v", err)
	}
	if res.Rows()[0][0] != int32(30) {
		t.Errorf("10+20 = %v", res.Rows()[0][0])
	}

	if err := ps.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}

func TestPreparedParamCountMismatch(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgParse)
		srv.expect(wire.MsgDescribe)
		srv.expect(wire.MsgSync)
		srv.parseComplete()
		srv.paramDesc(pgtype.Int4OID)
		srv.noData()
		srv.ready()
	})

	ps, err := c.Prepare(context.Background(), "INSERT INTO t VALUES ($1)")
	<-done
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	_, err = ps.Exec(context.Background(), 1, 2)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestBindNullParameter(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgParse)
		srv.expect(wire.MsgDescribe)
		srv.expect(wire.MsgSync)
		srv.parseComplete()
		srv.paramDesc(pgtype.TextOID)
		srv.noData()
		srv.ready()

		srv.expect(wire.MsgBind)
		srv.cstring()
		srv.cstring()
		srv.buf.Int16()
		if n := srv.buf.Int16(); n != 1 {
			t.Errorf("bind param count = %d", n)
		}
		if l := srv.buf.Int32(); l != wire.NullLength {
			t.Errorf("null param length = %d", l)
		}
		srv.expect(wire.MsgExecute)
		srv.expect(wire.MsgSync)
		srv.bindComplete()
		srv.cmdComplete("INSERT 0 1")
		srv.ready()
	})

	ctx := context.Background()
	ps, err := c.Prepare(ctx, "INSERT INTO t VALUES ($1)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	res, err := ps.Exec(ctx, nil)
	<-done
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Tag() != "INSERT 0 1" {
		t.Errorf("Tag = %q", res.Tag())
	}
}

func TestQueryFormatsThroughClient(t *testing.T) {
	c, srv := startClient(t)
	done := srv.script(func() {
		srv.acceptStartup(nil, true)
		srv.expect(wire.MsgQuery)
		if got := srv.cstring(); got != "SELECT 'hi', 7" {
			t.Errorf("bound query = %q", got)
		}
		srv.rowDesc(col{"a", pgtype.TextOID}, col{"b", pgtype.Int4OID})
		srv.dataRow("hi", "7")
		srv.cmdComplete("SELECT 1")
		srv.ready()
	})

	res, err := c.Format("SELECT $1, $2").Query(context.Background(), "hi", 7)
	<-done
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fmt.Sprint(res.Rows()[0]) != "[hi 7]" {
		t.Errorf("row = %v", res.Rows()[0])
	}
}
