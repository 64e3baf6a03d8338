package message

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/pgwire/client/internal/wire/buffer"
	"github.com/pgwire/client/internal/wire/types"
)

const protocolVersion3 int32 = 196608 // 3.0, major<<16 | minor

const sslRequestCode int32 = 80877103

// StartupParams configures the startup message's key/value parameter list.
type StartupParams struct {
	User     string
	Database string
	Extra    map[string]string // e.g. application_name, TimeZone
}

// Startup builds the initial, untyped startup message (spec.md §3).
func Startup(w *buffer.Writer, p StartupParams) ([]byte, error) {
	w.StartUntyped()
	w.AddInt32(protocolVersion3)
	w.AddCString("user")
	w.AddCString(p.User)
	if p.Database != "" {
		w.AddCString("database")
		w.AddCString(p.Database)
	}
	w.AddCString("client_encoding")
	w.AddCString("UTF8")
	for k, v := range p.Extra {
		w.AddCString(k)
		w.AddCString(v)
	}
	w.AddByte(0)
	return w.Bytes()
}

// SSLRequest builds the SSL negotiation preamble sent before the startup
// message when TLS is requested.
func SSLRequest(w *buffer.Writer) ([]byte, error) {
	w.StartUntyped()
	w.AddInt32(sslRequestCode)
	return w.Bytes()
}

// CleartextPassword builds a PasswordMessage carrying the password as-is.
func CleartextPassword(w *buffer.Writer, password string) ([]byte, error) {
	w.Start(types.FrontendPassword)
	w.AddCString(password)
	return w.Bytes()
}

// MD5Password builds a PasswordMessage with the salted MD5 digest Postgres
// expects: "md5" + hex(md5(hex(md5(password+user)) + salt)).
func MD5Password(w *buffer.Writer, user, password string, salt [4]byte) ([]byte, error) {
	inner := md5Hex([]byte(password + user))
	outer := md5Hex(append([]byte(inner), salt[:]...))
	w.Start(types.FrontendPassword)
	w.AddCString("md5" + outer)
	return w.Bytes()
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// SASLInitialResponse builds the first SASL response message, naming the
// chosen mechanism (spec.md §3, SCRAM-SHA-256 handshake).
func SASLInitialResponse(w *buffer.Writer, mechanism string, clientFirst []byte) ([]byte, error) {
	w.Start(types.FrontendPassword)
	w.AddCString(mechanism)
	w.AddInt32(int32(len(clientFirst)))
	w.AddBytes(clientFirst)
	return w.Bytes()
}

// SASLResponse builds a subsequent SASL response (untyped body, same
// PasswordMessage type byte).
func SASLResponse(w *buffer.Writer, payload []byte) ([]byte, error) {
	w.Start(types.FrontendPassword)
	w.AddBytes(payload)
	return w.Bytes()
}

// SimpleQuery builds a simple-query protocol message carrying one or more
// semicolon-separated, already-substituted SQL statements.
func SimpleQuery(w *buffer.Writer, sql string) ([]byte, error) {
	w.Start(types.FrontendSimpleQuery)
	w.AddCString(sql)
	return w.Bytes()
}

// Parse builds a Parse message for the extended query protocol. paramOIDs
// may be empty to let the server infer parameter types.
func Parse(w *buffer.Writer, statementName, sql string, paramOIDs []types.OID) ([]byte, error) {
	w.Start(types.FrontendParse)
	w.AddCString(statementName)
	w.AddCString(sql)
	w.AddInt16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		w.AddInt32(int32(oid))
	}
	return w.Bytes()
}

// BindParam is one already-encoded parameter value for a Bind message; Null
// distinguishes a SQL NULL from a zero-length value.
type BindParam struct {
	Value []byte
	Null  bool
}

// Bind builds a Bind message. Parameters always carry a single format
// code, paramFormat, which applies to every parameter; per-parameter codes
// are not sent. Result columns get a single format code when every entry
// of resultFormats is the same (text when it is empty), otherwise one code
// per column.
func Bind(w *buffer.Writer, portalName, statementName string, params []BindParam, paramFormat types.FormatCode, resultFormats []types.FormatCode) ([]byte, error) {
	w.Start(types.FrontendBind)
	w.AddCString(portalName)
	w.AddCString(statementName)

	w.AddInt16(1)
	w.AddInt16(int16(paramFormat))

	w.AddInt16(int16(len(params)))
	for _, p := range params {
		if p.Null {
			w.AddInt32(-1)
			continue
		}
		w.AddInt32(int32(len(p.Value)))
		w.AddBytes(p.Value)
	}

	if allSameFormat(resultFormats) {
		w.AddInt16(1)
		f := types.TextFormat
		if len(resultFormats) > 0 {
			f = resultFormats[0]
		}
		w.AddInt16(int16(f))
	} else {
		w.AddInt16(int16(len(resultFormats)))
		for _, f := range resultFormats {
			w.AddInt16(int16(f))
		}
	}

	return w.Bytes()
}

func allSameFormat(formats []types.FormatCode) bool {
	for i := 1; i < len(formats); i++ {
		if formats[i] != formats[0] {
			return false
		}
	}
	return true
}

// DescribeTarget selects whether Describe reports on a prepared statement
// or a portal.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

// Describe builds a Describe message.
func Describe(w *buffer.Writer, target DescribeTarget, name string) ([]byte, error) {
	w.Start(types.FrontendDescribe)
	w.AddByte(byte(target))
	w.AddCString(name)
	return w.Bytes()
}

// Execute builds an Execute message. maxRows of 0 means "return all rows".
func Execute(w *buffer.Writer, portalName string, maxRows int32) ([]byte, error) {
	w.Start(types.FrontendExecute)
	w.AddCString(portalName)
	w.AddInt32(maxRows)
	return w.Bytes()
}

// Sync builds a Sync message, closing out one extended-query round trip.
func Sync(w *buffer.Writer) ([]byte, error) {
	w.Start(types.FrontendSync)
	return w.Bytes()
}

// CloseStatement builds a Close message targeting a prepared statement.
func CloseStatement(w *buffer.Writer, name string) ([]byte, error) {
	w.Start(types.FrontendClose)
	w.AddByte(byte(DescribeStatement))
	w.AddCString(name)
	return w.Bytes()
}

// ClosePortal builds a Close message targeting a portal.
func ClosePortal(w *buffer.Writer, name string) ([]byte, error) {
	w.Start(types.FrontendClose)
	w.AddByte(byte(DescribePortal))
	w.AddCString(name)
	return w.Bytes()
}

// Flush builds a Flush message, asking the server to deliver any buffered
// responses without an intervening Sync.
func Flush(w *buffer.Writer) ([]byte, error) {
	w.Start(types.FrontendFlush)
	return w.Bytes()
}

// Terminate builds a Terminate message, the clean shutdown signal.
func Terminate(w *buffer.Writer) ([]byte, error) {
	w.Start(types.FrontendTerminate)
	return w.Bytes()
}

// CancelRequest builds the special out-of-band cancel request, sent over a
// fresh connection rather than the one being cancelled (spec.md §4.5).
func CancelRequest(w *buffer.Writer, processID, secretKey uint32) ([]byte, error) {
	const cancelRequestCode int32 = 80877102
	w.StartUntyped()
	w.AddInt32(cancelRequestCode)
	w.AddInt32(int32(processID))
	w.AddInt32(int32(secretKey))
	return w.Bytes()
}
