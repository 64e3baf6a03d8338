// Package types defines the byte-level message codes of the PostgreSQL v3
// frontend/backend wire protocol.
package types

// FrontendMessage identifies a message the client sends to the backend.
type FrontendMessage byte

// BackendMessage identifies a message the backend sends to the client.
type BackendMessage byte

// http://www.postgresql.org/docs/current/protocol-message-formats.html
const (
	FrontendBind        FrontendMessage = 'B'
	FrontendClose       FrontendMessage = 'C'
	FrontendDescribe    FrontendMessage = 'D'
	FrontendExecute     FrontendMessage = 'E'
	FrontendFlush       FrontendMessage = 'H'
	FrontendParse       FrontendMessage = 'P'
	FrontendPassword    FrontendMessage = 'p'
	FrontendSimpleQuery FrontendMessage = 'Q'
	FrontendSync        FrontendMessage = 'S'
	FrontendTerminate   FrontendMessage = 'X'

	BackendAuth                 BackendMessage = 'R'
	BackendBackendKeyData       BackendMessage = 'K'
	BackendBindComplete         BackendMessage = '2'
	BackendCommandComplete      BackendMessage = 'C'
	BackendCloseComplete        BackendMessage = '3'
	BackendDataRow              BackendMessage = 'D'
	BackendEmptyQueryResponse   BackendMessage = 'I'
	BackendErrorResponse        BackendMessage = 'E'
	BackendNoticeResponse       BackendMessage = 'N'
	BackendNoData               BackendMessage = 'n'
	BackendNotificationResponse BackendMessage = 'A'
	BackendParameterDescription BackendMessage = 't'
	BackendParameterStatus      BackendMessage = 'S'
	BackendParseComplete        BackendMessage = '1'
	BackendPortalSuspended      BackendMessage = 's'
	BackendReadyForQuery        BackendMessage = 'Z'
	BackendRowDescription       BackendMessage = 'T'
)

func (m FrontendMessage) String() string {
	switch m {
	case FrontendBind:
		return "Bind"
	case FrontendClose:
		return "Close"
	case FrontendDescribe:
		return "Describe"
	case FrontendExecute:
		return "Execute"
	case FrontendFlush:
		return "Flush"
	case FrontendParse:
		return "Parse"
	case FrontendPassword:
		return "Password"
	case FrontendSimpleQuery:
		return "Query"
	case FrontendSync:
		return "Sync"
	case FrontendTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

func (m BackendMessage) String() string {
	switch m {
	case BackendAuth:
		return "Authentication"
	case BackendBackendKeyData:
		return "BackendKeyData"
	case BackendBindComplete:
		return "BindComplete"
	case BackendCommandComplete:
		return "CommandComplete"
	case BackendCloseComplete:
		return "CloseComplete"
	case BackendDataRow:
		return "DataRow"
	case BackendEmptyQueryResponse:
		return "EmptyQueryResponse"
	case BackendErrorResponse:
		return "ErrorResponse"
	case BackendNoticeResponse:
		return "NoticeResponse"
	case BackendNoData:
		return "NoData"
	case BackendNotificationResponse:
		return "NotificationResponse"
	case BackendParameterDescription:
		return "ParameterDescription"
	case BackendParameterStatus:
		return "ParameterStatus"
	case BackendParseComplete:
		return "ParseComplete"
	case BackendPortalSuspended:
		return "PortalSuspended"
	case BackendReadyForQuery:
		return "ReadyForQuery"
	case BackendRowDescription:
		return "RowDescription"
	default:
		return "Unknown"
	}
}

// AuthType identifies the sub-type of an AuthenticationXXX backend message.
type AuthType int32

const (
	AuthOK                AuthType = 0
	AuthCleartextPassword AuthType = 3
	AuthMD5Password       AuthType = 5
	AuthSASL              AuthType = 10
	AuthSASLContinue      AuthType = 11
	AuthSASLFinal         AuthType = 12
)

// TxStatus is the transaction status byte reported in ReadyForQuery.
type TxStatus byte

const (
	TxIdle     TxStatus = 'I'
	TxInBlock  TxStatus = 'T'
	TxInFailed TxStatus = 'E'
)

// FormatCode selects text or binary wire representation for a value.
type FormatCode int16

const (
	TextFormat   FormatCode = 0
	BinaryFormat FormatCode = 1
)

// OID is a Postgres type OID, used to tag parameters and column values.
type OID uint32

// Well-known type OIDs for the types this driver supports natively.
// https://www.postgresql.org/docs/current/datatype-oid.html
const (
	OIDBool        OID = 16
	OIDBytea       OID = 17
	OIDName        OID = 19
	OIDInt8        OID = 20
	OIDInt2        OID = 21
	OIDInt4        OID = 23
	OIDText        OID = 25
	OIDJSON        OID = 114
	OIDFloat4      OID = 700
	OIDFloat8      OID = 701
	OIDUnknown     OID = 705
	OIDDate        OID = 1082
	OIDTimestamp   OID = 1114
	OIDTimestampTz OID = 1184
	OIDUUID        OID = 2950
	OIDJSONB       OID = 3802
)
