package pgtype

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DecodeFunc turns a non-NULL field payload into a Go value. data is
// only valid for the duration of the call; decoders must copy anything
// they retain.
type DecodeFunc func(c *Converter, data []byte, desc *FieldDesc) (any, error)

type typeCodec struct {
	name   string
	decode DecodeFunc
}

// Converter maps type OIDs to decoders and holds the session's
// character encoding and timezone. One converter per session,
// constructed after startup once the server has reported
// client_encoding and TimeZone.
type Converter struct {
	types    map[uint32]typeCodec
	encoding string
	dec      *encoding.Decoder
	enc      *encoding.Encoder
	loc      *time.Location
}

// charmaps covers the single-byte encodings decoded beyond the UTF8 /
// SQL_ASCII pass-through. Anything else falls back to raw bytes.
var charmaps = map[string]*charmap.Charmap{
	"LATIN1":  charmap.ISO8859_1,
	"LATIN2":  charmap.ISO8859_2,
	"LATIN9":  charmap.ISO8859_15,
	"WIN1250": charmap.Windows1250,
	"WIN1251": charmap.Windows1251,
	"WIN1252": charmap.Windows1252,
}

// NewConverter builds a converter from the server parameter map
// collected during startup, installing the default decoder table.
func NewConverter(params map[string]string) *Converter {
	c := &Converter{
		types:    make(map[uint32]typeCodec, 64),
		encoding: "UTF8",
		loc:      time.UTC,
	}
	if enc, ok := params["client_encoding"]; ok && enc != "" {
		c.encoding = enc
	}
	if cm, ok := charmaps[c.encoding]; ok {
		c.dec = cm.NewDecoder()
		c.enc = encoding.ReplaceUnsupported(cm.NewEncoder())
	}
	if tz, ok := params["TimeZone"]; ok && tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			c.loc = loc
		}
	}
	registerDefaults(c)
	return c
}

// Encoding returns the active client encoding name.
func (c *Converter) Encoding() string { return c.encoding }

// Location returns the timezone applied to timestamptz values.
func (c *Converter) Location() *time.Location { return c.loc }

// String decodes raw payload bytes into a Go string in the session
// encoding. UTF8 and SQL_ASCII are byte-identical to Go strings; the
// charmap encodings are transcoded; unknown encodings pass through raw.
func (c *Converter) String(data []byte) string {
	if c.dec != nil {
		if out, err := c.dec.Bytes(data); err == nil {
			return string(out)
		}
	}
	return string(data)
}

// EncodeString converts a Go string to its on-wire bytes in the session
// encoding. Used by the message builder for outbound C-strings.
func (c *Converter) EncodeString(s string) []byte {
	if c.enc != nil {
		if out, err := c.enc.Bytes([]byte(s)); err == nil {
			return out
		}
	}
	return []byte(s)
}

// Register installs (or replaces) the decoder for a type OID. name is
// the textual type name, kept for diagnostics.
func (c *Converter) Register(oid uint32, name string, fn DecodeFunc) {
	c.types[oid] = typeCodec{name: name, decode: fn}
}

// RegisterEnum installs a decoder for a server-defined enum type that
// yields the label as a string. Enum OIDs are created dynamically and
// are not known at compile time.
func (c *Converter) RegisterEnum(oid uint32, name string) {
	c.Register(oid, name, func(c *Converter, data []byte, _ *FieldDesc) (any, error) {
		return c.String(data), nil
	})
}

// TypeName returns the registered name for an OID.
func (c *Converter) TypeName(oid uint32) (string, bool) {
	tc, ok := c.types[oid]
	return tc.name, ok
}

// Decode converts a non-NULL field payload into a Go value. Unknown
// OIDs decode to a string (text format) or a copied byte slice (binary
// format) rather than failing the whole row.
func (c *Converter) Decode(data []byte, desc *FieldDesc) (any, error) {
	tc, ok := c.types[desc.TypeOID]
	if !ok {
		if desc.Format == BinaryFormat {
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
		return c.String(data), nil
	}
	v, err := tc.decode(c, data, desc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s (oid %d): %w", tc.name, desc.TypeOID, err)
	}
	return v, nil
}
