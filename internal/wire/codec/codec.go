// Package codec implements the binary wire encoders/decoders for every
// Postgres type this driver supports natively (spec.md §4.2), plus the
// text-format literal escaper used by the simple-query path.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/pgerr"
)

// ParamType is one of the declared Postgres types a caller (or the
// external parameter substitutor) may assign to a value (spec.md §6).
type ParamType string

const (
	Text         ParamType = "text"
	Integer      ParamType = "integer"
	SmallInteger ParamType = "smallInteger"
	BigInteger   ParamType = "bigInteger"
	Real         ParamType = "real"
	Double       ParamType = "double"
	Boolean      ParamType = "boolean"
	Timestamp    ParamType = "timestamp"
	TimestampTz  ParamType = "timestamptz"
	Date         ParamType = "date"
	JSON         ParamType = "json"
	Bytea        ParamType = "bytea"
	UUID         ParamType = "uuid"
	Serial       ParamType = "serial"
	BigSerial    ParamType = "bigSerial"
	Name         ParamType = "name"
)

// OID returns the Postgres type OID this declared type binds to on the
// wire (sent in the Parse message's parameter type list, and compared
// against the server's ParameterDescription).
func (t ParamType) OID() types.OID {
	switch t {
	case Text:
		return types.OIDText
	case Integer, Serial:
		return types.OIDInt4
	case SmallInteger:
		return types.OIDInt2
	case BigInteger, BigSerial:
		return types.OIDInt8
	case Real:
		return types.OIDFloat4
	case Double:
		return types.OIDFloat8
	case Boolean:
		return types.OIDBool
	case Timestamp:
		return types.OIDTimestamp
	case TimestampTz:
		return types.OIDTimestampTz
	case Date:
		return types.OIDDate
	case JSON:
		return types.OIDJSONB
	case Bytea:
		return types.OIDBytea
	case UUID:
		return types.OIDUUID
	case Name:
		return types.OIDName
	default:
		return types.OIDUnknown
	}
}

// pgEpoch is 2000-01-01T00:00:00 UTC, the zero point for Postgres date and
// timestamp binary encodings.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const jsonbVersion = 0x01

// EncodeBinary renders v in Postgres binary wire format for the declared
// type t. NULL is not encoded here: callers send NULL as a -1 length in
// the Bind message and never call EncodeBinary for a nil value.
func EncodeBinary(v any, t ParamType) ([]byte, error) {
	switch t {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeErr(t, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case SmallInteger:
		i, ok := toInt64(v)
		if !ok {
			return nil, typeErr(t, v)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(i)))
		return buf, nil

	case Integer, Serial:
		i, ok := toInt64(v)
		if !ok {
			return nil, typeErr(t, v)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(i)))
		return buf, nil

	case BigInteger, BigSerial:
		i, ok := toInt64(v)
		if !ok {
			return nil, typeErr(t, v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return buf, nil

	case Real:
		f, ok := toFloat64(v)
		if !ok {
			return nil, typeErr(t, v)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil

	case Double:
		f, ok := toFloat64(v)
		if !ok {
			return nil, typeErr(t, v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil

	case Text, Name:
		s, ok := v.(string)
		if !ok {
			return nil, typeErr(t, v)
		}
		return []byte(s), nil

	case Bytea:
		b, ok := v.([]byte)
		if !ok {
			return nil, typeErr(t, v)
		}
		return b, nil

	case Date:
		tm, ok := v.(time.Time)
		if !ok {
			return nil, typeErr(t, v)
		}
		days := int32(tm.UTC().Sub(pgEpoch).Hours() / 24)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(days))
		return buf, nil

	case Timestamp, TimestampTz:
		tm, ok := v.(time.Time)
		if !ok {
			return nil, typeErr(t, v)
		}
		micros := (tm.Unix()-pgEpoch.Unix())*1_000_000 + int64(tm.Nanosecond()/1000)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		return buf, nil

	case UUID:
		switch u := v.(type) {
		case [16]byte:
			return u[:], nil
		case string:
			b, err := parseUUID(u)
			if err != nil {
				return nil, err
			}
			return b[:], nil
		default:
			return nil, typeErr(t, v)
		}

	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, &pgerr.InvalidTypeError{Msg: fmt.Sprintf("json: %v", err)}
		}
		out := make([]byte, 0, len(raw)+1)
		out = append(out, jsonbVersion)
		out = append(out, raw...)
		return out, nil

	default:
		return nil, &pgerr.InvalidTypeError{Msg: fmt.Sprintf("unsupported declared type %q", t)}
	}
}

// DecodeBinary decodes raw bytes for the given type OID into a Go value.
// Types outside the native table are returned as []byte, or as a string
// if the bytes happen to be valid UTF-8 (spec.md §6).
func DecodeBinary(oid types.OID, raw []byte) (any, error) {
	switch oid {
	case types.OIDBool:
		if len(raw) != 1 {
			return nil, formatErr("bool", raw)
		}
		return raw[0] != 0, nil

	case types.OIDInt2:
		if len(raw) != 2 {
			return nil, formatErr("int2", raw)
		}
		return int16(binary.BigEndian.Uint16(raw)), nil

	case types.OIDInt4:
		if len(raw) != 4 {
			return nil, formatErr("int4", raw)
		}
		return int32(binary.BigEndian.Uint32(raw)), nil

	case types.OIDInt8:
		if len(raw) != 8 {
			return nil, formatErr("int8", raw)
		}
		return int64(binary.BigEndian.Uint64(raw)), nil

	case types.OIDFloat4:
		if len(raw) != 4 {
			return nil, formatErr("float4", raw)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil

	case types.OIDFloat8:
		if len(raw) != 8 {
			return nil, formatErr("float8", raw)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil

	case types.OIDText, types.OIDName:
		return string(raw), nil

	case types.OIDBytea:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil

	case types.OIDDate:
		if len(raw) != 4 {
			return nil, formatErr("date", raw)
		}
		days := int32(binary.BigEndian.Uint32(raw))
		return pgEpoch.AddDate(0, 0, int(days)), nil

	case types.OIDTimestamp, types.OIDTimestampTz:
		if len(raw) != 8 {
			return nil, formatErr("timestamp", raw)
		}
		micros := int64(binary.BigEndian.Uint64(raw))
		return time.Unix(pgEpoch.Unix()+micros/1_000_000, (micros%1_000_000)*1000).UTC(), nil

	case types.OIDUUID:
		if len(raw) != 16 {
			return nil, formatErr("uuid", raw)
		}
		var u [16]byte
		copy(u[:], raw)
		return formatUUID(u), nil

	case types.OIDJSON, types.OIDJSONB:
		body := raw
		if len(raw) > 0 && oid == types.OIDJSONB {
			body = raw[1:] // strip the leading version byte
		}
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil

	default:
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
}

func typeErr(t ParamType, v any) error {
	return &pgerr.InvalidTypeError{Msg: fmt.Sprintf("value %v (%T) is not valid for declared type %q", v, v, t)}
}

func formatErr(want string, raw []byte) error {
	return &pgerr.InvalidFormatError{Msg: fmt.Sprintf("malformed %s: %d bytes", want, len(raw))}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	case int:
		return float64(f), true
	}
	return 0, false
}

