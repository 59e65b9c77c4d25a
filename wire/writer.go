package wire

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Writer frames outbound messages onto a buffered stream. Messages are
// flushed individually except where the protocol benefits from
// coalescing (Parse|Describe|Sync, Bind|Execute|Sync), for which the
// NoFlush variant is provided.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w in a buffered message writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteMessage emits tag, big-endian length (payload + 4) and payload,
// then flushes.
func (w *Writer) WriteMessage(tag byte, payload []byte) error {
	if err := w.WriteMessageNoFlush(tag, payload); err != nil {
		return err
	}
	return w.bw.Flush()
}

// WriteMessageNoFlush emits a framed message into the buffer without
// flushing, so small message sequences coalesce into one write.
func (w *Writer) WriteMessageNoFlush(tag byte, payload []byte) error {
	var hdr [5]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)+4))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.bw.Write(payload)
	return err
}

// WriteStartup emits an untagged message (startup, SSLRequest,
// CancelRequest): big-endian length (payload + 4) then payload, flushed.
func (w *Writer) WriteStartup(payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)+4))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.bw.Write(payload); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Flush forces any buffered messages onto the stream.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
