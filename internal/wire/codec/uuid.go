package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/pgwire/client/pgerr"
)

// parseUUID parses the canonical xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx form.
func parseUUID(s string) ([16]byte, error) {
	var out [16]byte
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return out, &pgerr.InvalidFormatError{Msg: fmt.Sprintf("malformed uuid %q", s)}
	}

	hexPart := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	b, err := hex.DecodeString(hexPart)
	if err != nil || len(b) != 16 {
		return out, &pgerr.InvalidFormatError{Msg: fmt.Sprintf("malformed uuid %q", s)}
	}
	copy(out[:], b)
	return out, nil
}

// formatUUID renders the canonical string form of a 16-byte UUID.
func formatUUID(u [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}
