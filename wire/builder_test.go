package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderTypedWriters(t *testing.T) {
	b := NewBuilder(nil)
	b.PutByte('S')
	b.PutInt16(-2)
	b.PutInt32(80877103)
	b.PutCString("user")
	b.PutBytes([]byte{9, 9})

	assert.Equal(t, []byte{
		'S',
		0xff, 0xfe,
		0x04, 0xd2, 0x16, 0x2f,
		'u', 's', 'e', 'r', 0,
		9, 9,
	}, b.Bytes())
}

func TestBuilderReset(t *testing.T) {
	b := NewBuilder(nil)
	b.PutCString("one")
	b.Reset()
	b.PutByte(7)
	assert.Equal(t, []byte{7}, b.Bytes())
	assert.Equal(t, 1, b.Len())
}

func TestBuilderEncoder(t *testing.T) {
	// An encoder that uppercases ASCII stands in for a charmap encoder.
	enc := func(s string) []byte {
		out := []byte(s)
		for i, c := range out {
			if c >= 'a' && c <= 'z' {
				out[i] = c - 32
			}
		}
		return out
	}
	b := NewBuilder(enc)
	b.PutCString("abc")
	b.PutString("de")
	assert.Equal(t, []byte{'A', 'B', 'C', 0, 'D', 'E'}, b.Bytes())
}
