package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reader is a forward-only cursor over one already-framed message payload,
// used by internal/wire/message to decode backend messages field by field.
type Reader struct {
	buf []byte
}

// NewReader wraps a message payload for field-by-field decoding.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// ErrInsufficientData is returned when a Get* call needs more bytes than
// remain in the message — always a protocol error.
type ErrInsufficientData struct {
	Want, Have int
}

func (e *ErrInsufficientData) Error() string {
	return fmt.Sprintf("pgwire: insufficient data: want %d bytes, have %d", e.Want, e.Have)
}

func (r *Reader) GetByte() (byte, error) {
	if len(r.buf) < 1 {
		return 0, &ErrInsufficientData{1, len(r.buf)}
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b, nil
}

func (r *Reader) GetBytes(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, &ErrInsufficientData{n, len(r.buf)}
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b, nil
}

func (r *Reader) GetInt16() (int16, error) {
	b, err := r.GetBytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) GetInt32() (int32, error) {
	b, err := r.GetBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) GetUint32() (uint32, error) {
	v, err := r.GetInt32()
	return uint32(v), err
}

// GetCString reads a NUL-terminated string.
func (r *Reader) GetCString() (string, error) {
	idx := bytes.IndexByte(r.buf, 0)
	if idx == -1 {
		return "", fmt.Errorf("pgwire: missing NUL terminator")
	}
	s := string(r.buf[:idx])
	r.buf = r.buf[idx+1:]
	return s, nil
}

// Remaining returns whatever bytes are left unconsumed.
func (r *Reader) Remaining() []byte {
	return r.buf
}

// Len reports how many bytes remain unconsumed.
func (r *Reader) Len() int {
	return len(r.buf)
}
