// Package message implements the frontend message serializers and backend
// message parsers of the PostgreSQL v3 protocol (spec.md §3, §4.3).
package message

import (
	"strconv"
	"strings"

	"github.com/pgwire/client/internal/wire/buffer"
	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/pgerr"
)

// Backend is the tagged union of parsed backend messages. Every concrete
// type below implements it.
type Backend interface {
	backendMessage()
}

type Authentication struct {
	Kind   types.AuthType
	Salt   [4]byte // only set for AuthMD5Password
	SASL   []byte  // mechanism list (AuthSASL) or server payload (Continue/Final)
}

type ParameterStatus struct {
	Name  string
	Value string
}

type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

type ReadyForQuery struct {
	TxStatus types.TxStatus
}

type ColumnDescriptor struct {
	Name         string
	TableOID     uint32
	ColumnAttrNo int16
	TypeOID      types.OID
	TypeSize     int16
	TypeModifier int32
	Format       types.FormatCode
}

type RowDescription struct {
	Fields []ColumnDescriptor
}

// DataRow holds one row's raw column bytes; nil means SQL NULL.
type DataRow struct {
	Columns [][]byte
}

type CommandComplete struct {
	Tag           string
	AffectedRows  int64
	HasRowCount   bool
}

type ParseComplete struct{}
type BindComplete struct{}
type NoData struct{}
type EmptyQueryResponse struct{}
type CloseComplete struct{}
type PortalSuspended struct{}

type ParameterDescription struct {
	ParamTypes []types.OID
}

type ErrorResponse struct {
	Fields map[byte]string
}

func (e *ErrorResponse) field(code byte) string { return e.Fields[code] }

// Severity, Code, Message, Detail, Hint surface the well-known
// ErrorResponse fields (spec.md §3).
func (e *ErrorResponse) Severity() string { return e.field('S') }
func (e *ErrorResponse) Code() string     { return e.field('C') }
func (e *ErrorResponse) Message() string  { return e.field('M') }
func (e *ErrorResponse) Detail() string   { return e.field('D') }
func (e *ErrorResponse) Hint() string     { return e.field('H') }

type NoticeResponse struct {
	Fields map[byte]string
}

type NotificationResponse struct {
	ProcessID uint32
	Channel   string
	Payload   string
}

// Unknown is emitted for a type code this driver doesn't recognize,
// rather than failing the whole stream (spec.md §4.1).
type Unknown struct {
	Code types.BackendMessage
	Raw  []byte
}

func (*Authentication) backendMessage()        {}
func (*ParameterStatus) backendMessage()       {}
func (*BackendKeyData) backendMessage()        {}
func (*ReadyForQuery) backendMessage()         {}
func (*RowDescription) backendMessage()        {}
func (*DataRow) backendMessage()               {}
func (*CommandComplete) backendMessage()       {}
func (*ParseComplete) backendMessage()         {}
func (*BindComplete) backendMessage()          {}
func (*NoData) backendMessage()                {}
func (*EmptyQueryResponse) backendMessage()    {}
func (*CloseComplete) backendMessage()         {}
func (*PortalSuspended) backendMessage()       {}
func (*ParameterDescription) backendMessage()  {}
func (*ErrorResponse) backendMessage()         {}
func (*NoticeResponse) backendMessage()        {}
func (*NotificationResponse) backendMessage()  {}
func (*Unknown) backendMessage()               {}

// ParseBackend decodes one already-framed backend message.
func ParseBackend(raw buffer.RawMessage) (Backend, error) {
	r := buffer.NewReader(raw.Payload)

	switch raw.Type {
	case types.BackendAuth:
		kind, err := r.GetInt32()
		if err != nil {
			return nil, protoErr("Authentication", err)
		}
		auth := &Authentication{Kind: types.AuthType(kind)}
		switch auth.Kind {
		case types.AuthMD5Password:
			salt, err := r.GetBytes(4)
			if err != nil {
				return nil, protoErr("Authentication(MD5)", err)
			}
			copy(auth.Salt[:], salt)
		case types.AuthSASL, types.AuthSASLContinue, types.AuthSASLFinal:
			auth.SASL = append([]byte(nil), r.Remaining()...)
		}
		return auth, nil

	case types.BackendParameterStatus:
		name, err := r.GetCString()
		if err != nil {
			return nil, protoErr("ParameterStatus", err)
		}
		value, err := r.GetCString()
		if err != nil {
			return nil, protoErr("ParameterStatus", err)
		}
		return &ParameterStatus{Name: name, Value: value}, nil

	case types.BackendBackendKeyData:
		pid, err := r.GetUint32()
		if err != nil {
			return nil, protoErr("BackendKeyData", err)
		}
		key, err := r.GetUint32()
		if err != nil {
			return nil, protoErr("BackendKeyData", err)
		}
		return &BackendKeyData{ProcessID: pid, SecretKey: key}, nil

	case types.BackendReadyForQuery:
		b, err := r.GetByte()
		if err != nil {
			return nil, protoErr("ReadyForQuery", err)
		}
		return &ReadyForQuery{TxStatus: types.TxStatus(b)}, nil

	case types.BackendRowDescription:
		return parseRowDescription(r)

	case types.BackendDataRow:
		return parseDataRow(r)

	case types.BackendCommandComplete:
		tag, err := r.GetCString()
		if err != nil {
			return nil, protoErr("CommandComplete", err)
		}
		return &CommandComplete{Tag: tag, AffectedRows: parseAffectedRows(tag), HasRowCount: hasRowCount(tag)}, nil

	case types.BackendParseComplete:
		return &ParseComplete{}, nil
	case types.BackendBindComplete:
		return &BindComplete{}, nil
	case types.BackendNoData:
		return &NoData{}, nil
	case types.BackendEmptyQueryResponse:
		return &EmptyQueryResponse{}, nil
	case types.BackendCloseComplete:
		return &CloseComplete{}, nil
	case types.BackendPortalSuspended:
		return &PortalSuspended{}, nil

	case types.BackendParameterDescription:
		n, err := r.GetInt16()
		if err != nil {
			return nil, protoErr("ParameterDescription", err)
		}
		oids := make([]types.OID, n)
		for i := range oids {
			v, err := r.GetUint32()
			if err != nil {
				return nil, protoErr("ParameterDescription", err)
			}
			oids[i] = types.OID(v)
		}
		return &ParameterDescription{ParamTypes: oids}, nil

	case types.BackendErrorResponse:
		fields, err := parseFields(r)
		if err != nil {
			return nil, protoErr("ErrorResponse", err)
		}
		return &ErrorResponse{Fields: fields}, nil

	case types.BackendNoticeResponse:
		fields, err := parseFields(r)
		if err != nil {
			return nil, protoErr("NoticeResponse", err)
		}
		return &NoticeResponse{Fields: fields}, nil

	case types.BackendNotificationResponse:
		pid, err := r.GetUint32()
		if err != nil {
			return nil, protoErr("NotificationResponse", err)
		}
		channel, err := r.GetCString()
		if err != nil {
			return nil, protoErr("NotificationResponse", err)
		}
		payload, err := r.GetCString()
		if err != nil {
			return nil, protoErr("NotificationResponse", err)
		}
		return &NotificationResponse{ProcessID: pid, Channel: channel, Payload: payload}, nil

	default:
		return &Unknown{Code: raw.Type, Raw: raw.Payload}, nil
	}
}

func parseRowDescription(r *buffer.Reader) (*RowDescription, error) {
	n, err := r.GetInt16()
	if err != nil {
		return nil, protoErr("RowDescription", err)
	}
	fields := make([]ColumnDescriptor, n)
	for i := range fields {
		name, err := r.GetCString()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		tableOID, err := r.GetUint32()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		attrNo, err := r.GetInt16()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		typeOID, err := r.GetUint32()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		typeSize, err := r.GetInt16()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		typeMod, err := r.GetInt32()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		format, err := r.GetInt16()
		if err != nil {
			return nil, protoErr("RowDescription", err)
		}
		fields[i] = ColumnDescriptor{
			Name:         name,
			TableOID:     tableOID,
			ColumnAttrNo: attrNo,
			TypeOID:      types.OID(typeOID),
			TypeSize:     typeSize,
			TypeModifier: typeMod,
			Format:       types.FormatCode(format),
		}
	}
	return &RowDescription{Fields: fields}, nil
}

func parseDataRow(r *buffer.Reader) (*DataRow, error) {
	n, err := r.GetInt16()
	if err != nil {
		return nil, protoErr("DataRow", err)
	}
	cols := make([][]byte, n)
	for i := range cols {
		length, err := r.GetInt32()
		if err != nil {
			return nil, protoErr("DataRow", err)
		}
		if length < 0 {
			cols[i] = nil // SQL NULL
			continue
		}
		b, err := r.GetBytes(int(length))
		if err != nil {
			return nil, protoErr("DataRow", err)
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		cols[i] = cp
	}
	return &DataRow{Columns: cols}, nil
}

// parseFields reads the NUL-terminated, NUL-list-terminated field list
// shared by ErrorResponse and NoticeResponse (spec.md §3).
func parseFields(r *buffer.Reader) (map[byte]string, error) {
	fields := make(map[byte]string)
	for {
		code, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return fields, nil
		}
		val, err := r.GetCString()
		if err != nil {
			return nil, err
		}
		fields[code] = val
	}
}

// parseAffectedRows extracts the trailing row count from a CommandComplete
// tag such as "INSERT 0 1", "UPDATE 3", "SELECT 5".
func parseAffectedRows(tag string) int64 {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func hasRowCount(tag string) bool {
	fields := strings.Fields(tag)
	if len(fields) < 2 {
		return false
	}
	_, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	return err == nil
}

func protoErr(what string, err error) error {
	return &pgerr.ProtocolError{Msg: "parsing " + what, Err: err}
}
