package pgline

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pgline/pgline/pgtype"
)

// FormattedStatement substitutes $1, $2, ... placeholders client-side
// by quoting values, then runs the text as a simple query. Server-side
// typed binding is available through Prepare; this is the lighter
// alternative that avoids manual string concatenation.
type FormattedStatement struct {
	client   *Client
	template string
}

var placeholderPattern = regexp.MustCompile(`\$([0-9]+)`)

// Bind renders the template with args substituted for placeholders.
func (fs *FormattedStatement) Bind(args ...any) (string, error) {
	var bindErr error
	sql := placeholderPattern.ReplaceAllStringFunc(fs.template, func(m string) string {
		idx, err := strconv.Atoi(m[1:])
		if err != nil || idx < 1 || idx > len(args) {
			if bindErr == nil {
				bindErr = configErrorf("placeholder %s has no argument (%d given)", m, len(args))
			}
			return m
		}
		return quoteLiteral(args[idx-1])
	})
	if bindErr != nil {
		return "", bindErr
	}
	return sql, nil
}

// Query binds args and runs the statement, returning rows.
func (fs *FormattedStatement) Query(ctx context.Context, args ...any) (*Result, error) {
	sql, err := fs.Bind(args...)
	if err != nil {
		return nil, err
	}
	return fs.client.Query(ctx, sql)
}

// Exec binds args and runs the statement, returning command tags.
func (fs *FormattedStatement) Exec(ctx context.Context, args ...any) ([]string, error) {
	sql, err := fs.Bind(args...)
	if err != nil {
		return nil, err
	}
	return fs.client.Exec(ctx, sql)
}

// quoteLiteral renders v as a safe SQL literal. Strings use
// standard-conforming quoting with doubled single quotes; a backslash
// forces the E'' form so the value survives either server setting.
func quoteLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(x)
	case []byte:
		return `'\x` + hex.EncodeToString(x) + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05.999999-07:00") + "'"
	case fmt.Stringer:
		return quoteString(x.String())
	default:
		if pgtype.IsNull(v) {
			return "NULL"
		}
		return quoteString(fmt.Sprint(v))
	}
}

func quoteString(s string) string {
	quoted := strings.ReplaceAll(s, "'", "''")
	if strings.Contains(quoted, `\`) {
		return "E'" + strings.ReplaceAll(quoted, `\`, `\\`) + "'"
	}
	return "'" + quoted + "'"
}
