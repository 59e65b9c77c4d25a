package pgtype

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// postgresEpoch is the zero point of binary date/timestamp payloads.
var postgresEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func registerDefaults(c *Converter) {
	c.Register(BoolOID, "bool", decodeBool)
	c.Register(Int2OID, "int2", decodeInt2)
	c.Register(Int4OID, "int4", decodeInt4)
	c.Register(Int8OID, "int8", decodeInt8)
	c.Register(OIDOID, "oid", decodeInt8)
	c.Register(Float4OID, "float4", decodeFloat4)
	c.Register(Float8OID, "float8", decodeFloat8)
	c.Register(NumericOID, "numeric", decodeNumeric)
	c.Register(TextOID, "text", decodeText)
	c.Register(VarcharOID, "varchar", decodeText)
	c.Register(BPCharOID, "bpchar", decodeText)
	c.Register(NameOID, "name", decodeText)
	c.Register(ByteaOID, "bytea", decodeBytea)
	c.Register(DateOID, "date", decodeDate)
	c.Register(TimeOID, "time", decodeTime)
	c.Register(TimetzOID, "timetz", decodeTimetz)
	c.Register(TimestampOID, "timestamp", decodeTimestamp)
	c.Register(TimestamptzOID, "timestamptz", decodeTimestamptz)
	c.Register(IntervalOID, "interval", decodeInterval)
	c.Register(UUIDOID, "uuid", decodeUUID)
	c.Register(JSONOID, "json", decodeJSON)
	c.Register(JSONBOID, "jsonb", decodeJSON)
	c.Register(PointOID, "point", decodePoint)
	c.Register(LsegOID, "lseg", decodeText)
	c.Register(BoxOID, "box", decodeText)
	c.Register(CircleOID, "circle", decodeText)

	registerArrays(c)
}

func decodeBool(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("bool payload must be 1 byte, got %d", len(data))
	}
	if desc.Format == BinaryFormat {
		return data[0] != 0, nil
	}
	return data[0] == 't', nil
}

func decodeInt2(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 2 {
			return nil, fmt.Errorf("int2 payload must be 2 bytes, got %d", len(data))
		}
		return int16(binary.BigEndian.Uint16(data)), nil
	}
	v, err := strconv.ParseInt(string(data), 10, 16)
	return int16(v), err
}

func decodeInt4(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 4 {
			return nil, fmt.Errorf("int4 payload must be 4 bytes, got %d", len(data))
		}
		return int32(binary.BigEndian.Uint32(data)), nil
	}
	v, err := strconv.ParseInt(string(data), 10, 32)
	return int32(v), err
}

func decodeInt8(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 8 {
			return nil, fmt.Errorf("int8 payload must be 8 bytes, got %d", len(data))
		}
		return int64(binary.BigEndian.Uint64(data)), nil
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func decodeFloat4(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 4 {
			return nil, fmt.Errorf("float4 payload must be 4 bytes, got %d", len(data))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
	}
	v, err := strconv.ParseFloat(string(data), 32)
	return float32(v), err
}

func decodeFloat8(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 8 {
			return nil, fmt.Errorf("float8 payload must be 8 bytes, got %d", len(data))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	}
	return strconv.ParseFloat(string(data), 64)
}

func decodeNumeric(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		return nil, fmt.Errorf("binary format not supported")
	}
	return decimal.NewFromString(string(data))
}

func decodeText(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	return c.String(data), nil
}

func decodeBytea(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	if len(data) >= 2 && data[0] == '\\' && data[1] == 'x' {
		out := make([]byte, hex.DecodedLen(len(data)-2))
		if _, err := hex.Decode(out, data[2:]); err != nil {
			return nil, err
		}
		return out, nil
	}
	// Pre-9.0 escape format is passed through as raw bytes.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func decodeDate(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 4 {
			return nil, fmt.Errorf("date payload must be 4 bytes, got %d", len(data))
		}
		days := int32(binary.BigEndian.Uint32(data))
		return postgresEpoch.AddDate(0, 0, int(days)), nil
	}
	s := string(data)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		// infinity, -infinity and BC dates surface as their text form.
		return s, nil
	}
	return t, nil
}

func decodeTime(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 8 {
			return nil, fmt.Errorf("time payload must be 8 bytes, got %d", len(data))
		}
		micros := int64(binary.BigEndian.Uint64(data))
		return time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(micros) * time.Microsecond), nil
	}
	return time.Parse("15:04:05.999999", string(data))
}

var timetzLayouts = []string{
	"15:04:05.999999-07:00:00",
	"15:04:05.999999-07:00",
	"15:04:05.999999-07",
}

func decodeTimetz(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		return nil, fmt.Errorf("binary format not supported")
	}
	s := string(data)
	var lastErr error
	for _, layout := range timetzLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

var timestamptzLayouts = []string{
	"2006-01-02 15:04:05.999999-07:00:00",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999-07",
}

func decodeTimestamp(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 8 {
			return nil, fmt.Errorf("timestamp payload must be 8 bytes, got %d", len(data))
		}
		micros := int64(binary.BigEndian.Uint64(data))
		return postgresEpoch.Add(time.Duration(micros) * time.Microsecond), nil
	}
	s := string(data)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// infinity and BC timestamps surface as their text form.
	return s, nil
}

func decodeTimestamptz(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 8 {
			return nil, fmt.Errorf("timestamptz payload must be 8 bytes, got %d", len(data))
		}
		micros := int64(binary.BigEndian.Uint64(data))
		return postgresEpoch.Add(time.Duration(micros) * time.Microsecond).In(c.loc), nil
	}
	s := string(data)
	for _, layout := range timestamptzLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(c.loc), nil
		}
	}
	return s, nil
}

func decodeInterval(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		return nil, fmt.Errorf("binary format not supported")
	}
	// Intervals mix months, days and microseconds; the text form is the
	// only lossless representation.
	return c.String(data), nil
}

func decodeUUID(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		return uuid.FromBytes(data)
	}
	return uuid.Parse(string(data))
}

func decodeJSON(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat && desc.TypeOID == JSONBOID {
		// Binary jsonb carries a 1-byte version prefix.
		if len(data) < 1 || data[0] != 1 {
			return nil, fmt.Errorf("unknown jsonb version")
		}
		data = data[1:]
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
