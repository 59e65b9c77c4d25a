// Package pgtype decodes PostgreSQL field payloads (text or binary
// format) into Go values according to a registry keyed by type OID.
package pgtype

// Well-known type OIDs from the default pg_type catalog. Enum OIDs are
// assigned at runtime and registered through RegisterEnum.
const (
	BoolOID        uint32 = 16
	ByteaOID       uint32 = 17
	NameOID        uint32 = 19
	Int8OID        uint32 = 20
	Int2OID        uint32 = 21
	Int4OID        uint32 = 23
	TextOID        uint32 = 25
	OIDOID         uint32 = 26
	JSONOID        uint32 = 114
	PointOID       uint32 = 600
	LsegOID        uint32 = 601
	BoxOID         uint32 = 603
	CircleOID      uint32 = 718
	Float4OID      uint32 = 700
	Float8OID      uint32 = 701
	BPCharOID      uint32 = 1042
	VarcharOID     uint32 = 1043
	DateOID        uint32 = 1082
	TimeOID        uint32 = 1083
	TimestampOID   uint32 = 1114
	TimestamptzOID uint32 = 1184
	IntervalOID    uint32 = 1186
	TimetzOID      uint32 = 1266
	NumericOID     uint32 = 1700
	UUIDOID        uint32 = 2950
	JSONBOID       uint32 = 3802

	BoolArrayOID    uint32 = 1000
	Int2ArrayOID    uint32 = 1005
	Int4ArrayOID    uint32 = 1007
	TextArrayOID    uint32 = 1009
	VarcharArrayOID uint32 = 1015
	Int8ArrayOID    uint32 = 1016
	Float4ArrayOID  uint32 = 1021
	Float8ArrayOID  uint32 = 1022
	NumericArrayOID uint32 = 1231
	UUIDArrayOID    uint32 = 2951
)

// Field formats as reported in RowDescription.
const (
	TextFormat   int16 = 0
	BinaryFormat int16 = 1
)

// FieldDesc describes one column of a result set, produced from a
// RowDescription message. Immutable once constructed.
type FieldDesc struct {
	Name     string
	TableOID uint32
	AttrNum  int16
	TypeOID  uint32
	TypeSize int16
	TypeMod  int32
	Format   int16
}

// nullType is the dedicated NULL sentinel. A field length of 0xFFFFFFFF
// short-circuits to Null before any decoder runs.
type nullType struct{}

func (nullType) String() string { return "NULL" }

// Null is the value stored in a row for a SQL NULL field.
var Null nullType

// IsNull reports whether v is the NULL sentinel.
func IsNull(v any) bool {
	_, ok := v.(nullType)
	return ok
}
