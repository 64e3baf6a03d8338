// Package buffer provides the low-level byte plumbing for the pgwire
// protocol: a frontend message builder (Writer) and a backend message
// reassembler (Framer) that turns arbitrary TCP chunks into discrete,
// typed messages.
package buffer

import (
	"bytes"
	"encoding/binary"

	"github.com/pgwire/client/internal/wire/types"
)

// Writer assembles a single frontend message into a byte-counted frame.
// Start (or StartUntyped) opens one message, the Add* methods append to it
// in order, and Bytes finishes it.
type Writer struct {
	frame     bytes.Buffer
	putbuf    [4]byte
	lenOffset int
	err       error
}

// Start resets the writer and begins a new message with the given type
// byte. SSLRequest and the startup message have no type byte; for those
// callers use StartUntyped instead.
func (w *Writer) Start(t types.FrontendMessage) {
	w.Reset()
	w.frame.WriteByte(byte(t))
	w.frame.Write(w.putbuf[:4]) // placeholder length, patched in Bytes
	w.lenOffset = 1
}

// StartUntyped begins a length-prefixed message with no leading type byte
// (the startup message and the SSL request preamble).
func (w *Writer) StartUntyped() {
	w.Reset()
	w.frame.Write(w.putbuf[:4])
	w.lenOffset = 0
}

func (w *Writer) AddByte(b byte) {
	if w.err != nil {
		return
	}
	w.err = w.frame.WriteByte(b)
}

func (w *Writer) AddInt16(v int16) {
	if w.err != nil {
		return
	}
	binary.BigEndian.PutUint16(w.putbuf[:2], uint16(v))
	_, w.err = w.frame.Write(w.putbuf[:2])
}

func (w *Writer) AddInt32(v int32) {
	if w.err != nil {
		return
	}
	binary.BigEndian.PutUint32(w.putbuf[:4], uint32(v))
	_, w.err = w.frame.Write(w.putbuf[:4])
}

func (w *Writer) AddBytes(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.frame.Write(b)
}

func (w *Writer) AddString(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.frame.WriteString(s)
}

// AddCString writes a string followed by its NUL terminator.
func (w *Writer) AddCString(s string) {
	w.AddString(s)
	w.AddByte(0)
}

func (w *Writer) Error() error {
	return w.err
}

func (w *Writer) Reset() {
	w.frame.Reset()
	w.err = nil
}

// Bytes finalizes the message: the 4-byte length field (counted from
// itself, inclusive, per spec.md §4.1) is patched in and the full frame
// (type byte included, if any) is returned. The writer is left usable for
// the next message.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}

	b := w.frame.Bytes()
	// The length field's own 4 bytes count toward the length it encodes.
	length := uint32(len(b) - w.lenOffset)
	binary.BigEndian.PutUint32(b[w.lenOffset:w.lenOffset+4], length)

	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
