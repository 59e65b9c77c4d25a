package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a 2D point. Its text form round-trips as (x,y).
type Point struct {
	X, Y float64
}

func (p Point) String() string {
	return "(" + strconv.FormatFloat(p.X, 'g', -1, 64) +
		"," + strconv.FormatFloat(p.Y, 'g', -1, 64) + ")"
}

// ParsePoint parses the PostgreSQL text form "(x,y)".
func ParsePoint(s string) (Point, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	xs, ys, ok := strings.Cut(body, ",")
	if !ok {
		return Point{}, fmt.Errorf("malformed point %q", s)
	}
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return Point{}, fmt.Errorf("malformed point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return Point{}, fmt.Errorf("malformed point %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

func decodePoint(c *Converter, data []byte, desc *FieldDesc) (any, error) {
	if desc.Format == BinaryFormat {
		if len(data) != 16 {
			return nil, fmt.Errorf("point payload must be 16 bytes, got %d", len(data))
		}
		return Point{
			X: math.Float64frombits(binary.BigEndian.Uint64(data[:8])),
			Y: math.Float64frombits(binary.BigEndian.Uint64(data[8:])),
		}, nil
	}
	return ParsePoint(string(data))
}
