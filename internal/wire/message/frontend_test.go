package message

import (
	"testing"

	"github.com/pgwire/client/internal/wire/buffer"
	"github.com/pgwire/client/internal/wire/types"
)

func TestStartupMessage(t *testing.T) {
	var w buffer.Writer
	b, err := Startup(&w, StartupParams{User: "alice", Database: "appdb", Extra: map[string]string{"application_name": "pgclient-demo"}})
	if err != nil {
		t.Fatalf("Startup: %v", err)
	}

	r := buffer.NewReader(b[4:])
	version, err := r.GetInt32()
	if err != nil {
		t.Fatalf("GetInt32: %v", err)
	}
	if version != protocolVersion3 {
		t.Errorf("expected protocol version %d, got %d", protocolVersion3, version)
	}

	params := map[string]string{}
	for {
		key, err := r.GetCString()
		if err != nil {
			t.Fatalf("GetCString(key): %v", err)
		}
		if key == "" {
			break
		}
		val, err := r.GetCString()
		if err != nil {
			t.Fatalf("GetCString(value): %v", err)
		}
		params[key] = val
	}

	if params["user"] != "alice" || params["database"] != "appdb" || params["application_name"] != "pgclient-demo" || params["client_encoding"] != "UTF8" {
		t.Errorf("unexpected startup params: %+v", params)
	}
}

func TestSSLRequest(t *testing.T) {
	var w buffer.Writer
	b, err := SSLRequest(&w)
	if err != nil {
		t.Fatalf("SSLRequest: %v", err)
	}
	r := buffer.NewReader(b[4:])
	code, err := r.GetInt32()
	if err != nil {
		t.Fatalf("GetInt32: %v", err)
	}
	if code != sslRequestCode {
		t.Errorf("expected ssl request code %d, got %d", sslRequestCode, code)
	}
}

func TestCleartextPassword(t *testing.T) {
	var w buffer.Writer
	b, err := CleartextPassword(&w, "hunter2")
	if err != nil {
		t.Fatalf("CleartextPassword: %v", err)
	}
	if b[0] != byte(types.FrontendPassword) {
		t.Fatalf("expected Password type byte, got %v", b[0])
	}
	r := buffer.NewReader(b[5:])
	pw, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString: %v", err)
	}
	if pw != "hunter2" {
		t.Errorf("expected %q, got %q", "hunter2", pw)
	}
}

func TestMD5PasswordFormat(t *testing.T) {
	var w buffer.Writer
	b, err := MD5Password(&w, "alice", "hunter2", [4]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("MD5Password: %v", err)
	}
	r := buffer.NewReader(b[5:])
	pw, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString: %v", err)
	}
	if len(pw) != 35 || pw[:3] != "md5" {
		t.Errorf("expected a 32-hex-char digest prefixed with md5, got %q", pw)
	}
}

func TestMD5PasswordDeterministic(t *testing.T) {
	var w1, w2 buffer.Writer
	b1, err := MD5Password(&w1, "alice", "hunter2", [4]byte{9, 9, 9, 9})
	if err != nil {
		t.Fatalf("MD5Password: %v", err)
	}
	b2, err := MD5Password(&w2, "alice", "hunter2", [4]byte{9, 9, 9, 9})
	if err != nil {
		t.Fatalf("MD5Password: %v", err)
	}
	if string(b1) != string(b2) {
		t.Error("expected MD5Password to be deterministic for identical inputs")
	}

	var w3 buffer.Writer
	b3, err := MD5Password(&w3, "alice", "hunter2", [4]byte{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("MD5Password: %v", err)
	}
	if string(b1) == string(b3) {
		t.Error("expected a different salt to change the digest")
	}
}

func TestSASLInitialResponse(t *testing.T) {
	var w buffer.Writer
	clientFirst := []byte("n,,n=,r=abcd1234")
	b, err := SASLInitialResponse(&w, "SCRAM-SHA-256", clientFirst)
	if err != nil {
		t.Fatalf("SASLInitialResponse: %v", err)
	}
	r := buffer.NewReader(b[5:])
	mech, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString: %v", err)
	}
	if mech != "SCRAM-SHA-256" {
		t.Errorf("expected mechanism SCRAM-SHA-256, got %q", mech)
	}
	n, err := r.GetInt32()
	if err != nil {
		t.Fatalf("GetInt32: %v", err)
	}
	if int(n) != len(clientFirst) {
		t.Errorf("expected length %d, got %d", len(clientFirst), n)
	}
	got, err := r.GetBytes(int(n))
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(got) != string(clientFirst) {
		t.Errorf("expected %q, got %q", clientFirst, got)
	}
}

func TestSimpleQuery(t *testing.T) {
	var w buffer.Writer
	b, err := SimpleQuery(&w, "SELECT 1")
	if err != nil {
		t.Fatalf("SimpleQuery: %v", err)
	}
	if b[0] != byte(types.FrontendSimpleQuery) {
		t.Fatalf("expected Query type byte, got %v", b[0])
	}
	r := buffer.NewReader(b[5:])
	sql, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString: %v", err)
	}
	if sql != "SELECT 1" {
		t.Errorf("expected %q, got %q", "SELECT 1", sql)
	}
}

func TestParseMessage(t *testing.T) {
	var w buffer.Writer
	b, err := Parse(&w, "stmt1", "SELECT $1", []types.OID{types.OIDInt4})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b[0] != byte(types.FrontendParse) {
		t.Fatalf("expected Parse type byte, got %v", b[0])
	}
	r := buffer.NewReader(b[5:])
	name, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString(name): %v", err)
	}
	sql, err := r.GetCString()
	if err != nil {
		t.Fatalf("GetCString(sql): %v", err)
	}
	n, err := r.GetInt16()
	if err != nil {
		t.Fatalf("GetInt16: %v", err)
	}
	oid, err := r.GetInt32()
	if err != nil {
		t.Fatalf("GetInt32: %v", err)
	}
	if name != "stmt1" || sql != "SELECT $1" || n != 1 || types.OID(oid) != types.OIDInt4 {
		t.Errorf("unexpected Parse message: name=%q sql=%q n=%d oid=%d", name, sql, n, oid)
	}
}

func TestBindWithUniformFormats(t *testing.T) {
	var w buffer.Writer
	params := []BindParam{{Value: []byte("42")}, {Null: true}}
	b, err := Bind(&w, "", "stmt1", params, types.BinaryFormat, []types.FormatCode{types.BinaryFormat, types.BinaryFormat})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if b[0] != byte(types.FrontendBind) {
		t.Fatalf("expected Bind type byte, got %v", b[0])
	}
	r := buffer.NewReader(b[5:])
	portal, _ := r.GetCString()
	stmt, _ := r.GetCString()
	if portal != "" || stmt != "stmt1" {
		t.Fatalf("unexpected names: portal=%q stmt=%q", portal, stmt)
	}
	nParamFormats, _ := r.GetInt16()
	paramFormat, _ := r.GetInt16()
	if nParamFormats != 1 || types.FormatCode(paramFormat) != types.BinaryFormat {
		t.Fatalf("unexpected param format header: n=%d f=%d", nParamFormats, paramFormat)
	}
	nParams, _ := r.GetInt16()
	if nParams != 2 {
		t.Fatalf("expected 2 params, got %d", nParams)
	}
	l1, _ := r.GetInt32()
	v1, _ := r.GetBytes(int(l1))
	if string(v1) != "42" {
		t.Errorf("expected param 0 %q, got %q", "42", v1)
	}
	l2, _ := r.GetInt32()
	if l2 != -1 {
		t.Errorf("expected NULL (-1) for param 1, got length %d", l2)
	}
	nResultFormats, _ := r.GetInt16()
	resultFormat, _ := r.GetInt16()
	if nResultFormats != 1 || types.FormatCode(resultFormat) != types.BinaryFormat {
		t.Errorf("expected a single collapsed result format, got n=%d f=%d", nResultFormats, resultFormat)
	}
}

func TestBindWithMixedResultFormats(t *testing.T) {
	var w buffer.Writer
	b, err := Bind(&w, "p1", "stmt1", nil, types.TextFormat, []types.FormatCode{types.TextFormat, types.BinaryFormat})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	r := buffer.NewReader(b[5:])
	r.GetCString()
	r.GetCString()
	r.GetInt16()
	r.GetInt16()
	r.GetInt16() // n params = 0
	nResultFormats, _ := r.GetInt16()
	if nResultFormats != 2 {
		t.Errorf("expected 2 distinct result formats, got %d", nResultFormats)
	}
}

func TestDescribeAndExecuteAndSync(t *testing.T) {
	var w buffer.Writer
	b, err := Describe(&w, DescribeStatement, "stmt1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if b[0] != byte(types.FrontendDescribe) {
		t.Fatalf("expected Describe type byte, got %v", b[0])
	}
	r := buffer.NewReader(b[5:])
	target, _ := r.GetByte()
	name, _ := r.GetCString()
	if DescribeTarget(target) != DescribeStatement || name != "stmt1" {
		t.Errorf("unexpected Describe body: target=%v name=%q", target, name)
	}

	var ew buffer.Writer
	eb, err := Execute(&ew, "portal1", 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	er := buffer.NewReader(eb[5:])
	portal, _ := er.GetCString()
	maxRows, _ := er.GetInt32()
	if portal != "portal1" || maxRows != 10 {
		t.Errorf("unexpected Execute body: portal=%q maxRows=%d", portal, maxRows)
	}

	var sw buffer.Writer
	sb, err := Sync(&sw)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sb[0] != byte(types.FrontendSync) || len(sb) != 5 {
		t.Errorf("expected a bare 5-byte Sync message, got %v", sb)
	}
}

func TestCloseStatementAndPortal(t *testing.T) {
	var w buffer.Writer
	b, err := CloseStatement(&w, "stmt1")
	if err != nil {
		t.Fatalf("CloseStatement: %v", err)
	}
	r := buffer.NewReader(b[5:])
	target, _ := r.GetByte()
	name, _ := r.GetCString()
	if DescribeTarget(target) != DescribeStatement || name != "stmt1" {
		t.Errorf("unexpected CloseStatement body: target=%v name=%q", target, name)
	}

	var pw buffer.Writer
	pb, err := ClosePortal(&pw, "portal1")
	if err != nil {
		t.Fatalf("ClosePortal: %v", err)
	}
	pr := buffer.NewReader(pb[5:])
	ptarget, _ := pr.GetByte()
	pname, _ := pr.GetCString()
	if DescribeTarget(ptarget) != DescribePortal || pname != "portal1" {
		t.Errorf("unexpected ClosePortal body: target=%v name=%q", ptarget, pname)
	}
}

func TestFlushAndTerminate(t *testing.T) {
	var fw buffer.Writer
	fb, err := Flush(&fw)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb[0] != byte(types.FrontendFlush) || len(fb) != 5 {
		t.Errorf("expected a bare Flush message, got %v", fb)
	}

	var tw buffer.Writer
	tb, err := Terminate(&tw)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if tb[0] != byte(types.FrontendTerminate) || len(tb) != 5 {
		t.Errorf("expected a bare Terminate message, got %v", tb)
	}
}

func TestCancelRequest(t *testing.T) {
	var w buffer.Writer
	b, err := CancelRequest(&w, 4321, 987654)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	r := buffer.NewReader(b[4:])
	code, err := r.GetInt32()
	if err != nil {
		t.Fatalf("GetInt32: %v", err)
	}
	if code != 80877102 {
		t.Errorf("expected cancel request code 80877102, got %d", code)
	}
	pid, _ := r.GetInt32()
	secret, _ := r.GetInt32()
	if pid != 4321 || secret != 987654 {
		t.Errorf("expected pid=4321 secret=987654, got pid=%d secret=%d", pid, secret)
	}
}
