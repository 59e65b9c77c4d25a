package wire

import "encoding/binary"

// EncodeFunc converts a string to its on-wire byte representation in
// the session's client encoding. A nil EncodeFunc means the raw UTF-8
// bytes of the string are used, which is correct for the UTF8 and
// SQL_ASCII server encodings.
type EncodeFunc func(s string) []byte

// Builder is an append-only payload buffer with typed writers. One
// builder per session; Reset between messages.
type Builder struct {
	buf []byte
	enc EncodeFunc
}

// NewBuilder returns a builder whose strings are encoded with enc.
func NewBuilder(enc EncodeFunc) *Builder {
	return &Builder{enc: enc}
}

// Reset truncates the builder, keeping its allocation.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// PutByte appends a single byte.
func (b *Builder) PutByte(v byte) { b.buf = append(b.buf, v) }

// PutInt16 appends a big-endian int16.
func (b *Builder) PutInt16(v int16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(v))
}

// PutInt32 appends a big-endian int32.
func (b *Builder) PutInt32(v int32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
}

// PutCString appends the encoded bytes of s followed by a zero byte.
func (b *Builder) PutCString(s string) {
	if b.enc != nil {
		b.buf = append(b.buf, b.enc(s)...)
	} else {
		b.buf = append(b.buf, s...)
	}
	b.buf = append(b.buf, 0)
}

// PutString appends the encoded bytes of s with no terminator.
func (b *Builder) PutString(s string) {
	if b.enc != nil {
		b.buf = append(b.buf, b.enc(s)...)
	} else {
		b.buf = append(b.buf, s...)
	}
}

// PutBytes appends raw bytes.
func (b *Builder) PutBytes(p []byte) { b.buf = append(b.buf, p...) }

// Bytes returns the accumulated payload. The slice aliases the builder
// and is only valid until the next Reset.
func (b *Builder) Bytes() []byte { return b.buf }

// Len returns the current payload length.
func (b *Builder) Len() int { return len(b.buf) }
