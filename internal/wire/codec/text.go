package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EncodeText renders v as a SQL literal for the simple-query path
// (spec.md §4.2). Unlike EncodeBinary this does not need a declared type:
// the literal form is self-describing enough for Postgres to parse.
func EncodeText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil

	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil

	case int, int16, int32, int64, uint32:
		return fmt.Sprintf("%d", val), nil

	case float32:
		return encodeFloatText(float64(val)), nil

	case float64:
		return encodeFloatText(val), nil

	case string:
		return quoteText(val), nil

	case []byte:
		return quoteText(fmt.Sprintf("\\x%x", val)), nil

	case time.Time:
		return quoteText(encodeDateTimeText(val)), nil

	case [16]byte:
		return quoteText(formatUUID(val)), nil

	default:
		return "", typeErr(Text, v)
	}
}

func encodeFloatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "'nan'"
	case math.IsInf(f, 1):
		return "'infinity'"
	case math.IsInf(f, -1):
		return "'-infinity'"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// quoteText single-quotes a string literal, doubling embedded quotes. If
// the string contains a backslash it instead uses the E'...' escape form
// with backslashes doubled, per spec.md §4.2.
func quoteText(s string) string {
	if strings.Contains(s, `\`) {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `''`)
		return "E'" + escaped + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// encodeDateTimeText renders t as ISO-8601 with a ±HH:MM zone offset. BC
// years render as the absolute year, zero-padded to at least 4 digits,
// followed by " BC".
func encodeDateTimeText(t time.Time) string {
	year := t.Year()
	bc := year <= 0
	absYear := year
	if bc {
		absYear = 1 - year // year 0 is 1 BC
	}

	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	offH := offset / 3600
	offM := (offset % 3600) / 60

	out := fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%06d%s%02d:%02d",
		absYear, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000,
		sign, offH, offM)

	if bc {
		out += " BC"
	}
	return out
}
