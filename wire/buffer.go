package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageLen bounds inbound message payloads. Anything larger is
// treated as a framing error rather than an allocation request.
const maxMessageLen = 1 << 26

// ReadBuffer holds one inbound protocol message. A session owns exactly
// one ReadBuffer and refills it in place on every read, so the payload
// allocation is amortized across the whole session.
type ReadBuffer struct {
	tag     byte
	payload []byte
	pos     int
	err     error
}

// ReadFrom blocks until a complete message (tag, length, payload) has
// been buffered, replacing any previous contents. A stream that ends
// mid-message yields io.ErrUnexpectedEOF.
func (b *ReadBuffer) ReadFrom(r io.Reader) error {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	n := int(binary.BigEndian.Uint32(hdr[1:])) - 4
	if n < 0 || n > maxMessageLen {
		return fmt.Errorf("invalid message length: %d", n)
	}
	if cap(b.payload) < n {
		b.payload = make([]byte, n)
	}
	b.payload = b.payload[:n]
	if n > 0 {
		if _, err := io.ReadFull(r, b.payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
	}
	b.tag = hdr[0]
	b.pos = 0
	b.err = nil
	return nil
}

// Tag returns the tag byte of the buffered message.
func (b *ReadBuffer) Tag() byte { return b.tag }

// Len returns the payload length of the buffered message.
func (b *ReadBuffer) Len() int { return len(b.payload) }

// Remaining returns the number of unread payload bytes.
func (b *ReadBuffer) Remaining() int { return len(b.payload) - b.pos }

// Err returns the first payload overrun encountered by the typed
// readers since the last ReadFrom. Readers return zero values once the
// buffer is in error, so a parse sequence only needs one check at the end.
func (b *ReadBuffer) Err() error { return b.err }

func (b *ReadBuffer) fail() {
	if b.err == nil {
		b.err = fmt.Errorf("message %q: read past end of %d byte payload", b.tag, len(b.payload))
	}
}

// Byte reads one payload byte.
func (b *ReadBuffer) Byte() byte {
	if b.err != nil || b.pos+1 > len(b.payload) {
		b.fail()
		return 0
	}
	v := b.payload[b.pos]
	b.pos++
	return v
}

// Int16 reads a big-endian int16.
func (b *ReadBuffer) Int16() int16 {
	if b.err != nil || b.pos+2 > len(b.payload) {
		b.fail()
		return 0
	}
	v := int16(binary.BigEndian.Uint16(b.payload[b.pos:]))
	b.pos += 2
	return v
}

// Int32 reads a big-endian int32.
func (b *ReadBuffer) Int32() int32 {
	if b.err != nil || b.pos+4 > len(b.payload) {
		b.fail()
		return 0
	}
	v := int32(binary.BigEndian.Uint32(b.payload[b.pos:]))
	b.pos += 4
	return v
}

// Uint32 reads a big-endian uint32.
func (b *ReadBuffer) Uint32() uint32 {
	return uint32(b.Int32())
}

// CString reads bytes up to (and consuming) the next zero byte.
func (b *ReadBuffer) CString() []byte {
	if b.err != nil {
		return nil
	}
	for i := b.pos; i < len(b.payload); i++ {
		if b.payload[i] == 0 {
			v := b.payload[b.pos:i]
			b.pos = i + 1
			return v
		}
	}
	b.fail()
	return nil
}

// Bytes reads exactly n payload bytes. The returned slice aliases the
// buffer and is only valid until the next ReadFrom.
func (b *ReadBuffer) Bytes(n int) []byte {
	if b.err != nil || n < 0 || b.pos+n > len(b.payload) {
		b.fail()
		return nil
	}
	v := b.payload[b.pos : b.pos+n]
	b.pos += n
	return v
}

// ReadSSLResponse reads the single-byte reply to an SSLRequest. This is
// the one point in the protocol where the server answers without a
// length-prefixed frame.
func ReadSSLResponse(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
