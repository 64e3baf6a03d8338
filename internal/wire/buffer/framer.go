package buffer

import (
	"encoding/binary"
	"fmt"

	"github.com/pgwire/client/internal/wire/types"
)

// RawMessage is one reassembled, still-undecoded backend message: a type
// byte and its payload (length bytes already stripped).
type RawMessage struct {
	Type    types.BackendMessage
	Payload []byte
}

// Framer reassembles backend messages from arbitrary byte chunks pushed in
// via Push. It holds unconsumed bytes between calls and never loses or
// duplicates a byte, however the chunks are split (spec.md §4.1, §8).
//
// A backend message is type(1) + length(4, big-endian, inclusive of
// itself) + payload(length-4). Framer buffers until it has a full header,
// then until it has the full payload, emitting exactly one RawMessage per
// complete wire message before looking for the next header.
type Framer struct {
	buf []byte

	haveHeader bool
	msgType    types.BackendMessage
	payloadLen int
}

// Push appends a chunk of bytes read from the socket and returns every
// complete message that can now be assembled, in order. Left-over partial
// bytes remain buffered for the next call.
//
// A non-nil error means the stream declared a malformed message length;
// the messages returned alongside it (if any) are still valid and should
// be handled, but the caller must stop reading and close the connection
// once it has — the framer's internal state is no longer trustworthy
// past the bad header.
func (f *Framer) Push(chunk []byte) ([]RawMessage, error) {
	f.buf = append(f.buf, chunk...)

	var out []RawMessage
	for {
		if !f.haveHeader {
			if len(f.buf) < 5 {
				break
			}
			f.msgType = types.BackendMessage(f.buf[0])
			declared := int(binary.BigEndian.Uint32(f.buf[1:5]))
			if declared < 4 {
				return out, fmt.Errorf("framer: message type %q declared length %d, minimum is 4", f.msgType, declared)
			}
			f.payloadLen = declared - 4
			f.buf = f.buf[5:]
			f.haveHeader = true
		}

		if len(f.buf) < f.payloadLen {
			break
		}

		payload := make([]byte, f.payloadLen)
		copy(payload, f.buf[:f.payloadLen])
		f.buf = f.buf[f.payloadLen:]
		f.haveHeader = false

		out = append(out, RawMessage{Type: f.msgType, Payload: payload})
	}

	return out, nil
}

// Pending reports how many bytes are buffered waiting for more data. No
// size limit is enforced on the buffered bytes.
func (f *Framer) Pending() int {
	return len(f.buf)
}
