package pgconn

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pgwire/client/internal/wire/types"
)

// serveRelnameQueryOnce answers exactly one extended-query round trip for
// a pg_class lookup with a single "users" row, then returns to the
// caller's control.
func serveRelnameQueryOnce(r *bufio.Reader, conn net.Conn) error {
	for _, want := range []byte{byte(types.FrontendParse), byte(types.FrontendDescribe), byte(types.FrontendBind), byte(types.FrontendExecute), byte(types.FrontendSync)} {
		typ, _, err := readFrontendMsg(r)
		if err != nil {
			return err
		}
		if typ != want {
			return nil
		}
	}

	if err := writeBackendMsg(conn, types.BackendParseComplete, nil); err != nil {
		return err
	}
	if err := writeBackendMsg(conn, types.BackendParameterDescription, (&payloadBuilder{}).int16(1).uint32(uint32(types.OIDInt8)).build()); err != nil {
		return err
	}
	if err := writeBackendMsg(conn, types.BackendBindComplete, nil); err != nil {
		return err
	}

	rowDesc := (&payloadBuilder{}).
		int16(1).
		cstring("relname").
		uint32(0).
		int16(1).
		uint32(uint32(types.OIDText)).
		int16(-1).
		int32(-1).
		int16(int16(types.BinaryFormat)).
		build()
	if err := writeBackendMsg(conn, types.BackendRowDescription, rowDesc); err != nil {
		return err
	}

	dataRow := (&payloadBuilder{}).
		int16(1).
		int32(5).
		bytes([]byte("users")).
		build()
	if err := writeBackendMsg(conn, types.BackendDataRow, dataRow); err != nil {
		return err
	}

	if err := writeBackendMsg(conn, types.BackendCommandComplete, (&payloadBuilder{}).cstring("SELECT 1").build()); err != nil {
		return err
	}
	return writeBackendMsg(conn, types.BackendReadyForQuery, []byte{'I'})
}

func TestResolveRelationNameQueriesAndCaches(t *testing.T) {
	queries := 0
	fs := newFakeServer(t, func(conn net.Conn) error {
		r := bufio.NewReader(conn)
		if _, err := readUntypedMsg(r); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendAuth, (&payloadBuilder{}).int32(0).build()); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendReadyForQuery, []byte{'I'}); err != nil {
			return err
		}

		queries++
		return serveRelnameQueryOnce(r, conn)
	})
	host, port := fs.hostPort()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Connect(ctx, Config{Host: host, Port: port, User: "alice", Database: "appdb"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	name, err := conn.ResolveRelationName(ctx, 16412)
	if err != nil {
		t.Fatalf("ResolveRelationName: %v", err)
	}
	if name != "users" {
		t.Errorf("expected %q, got %q", "users", name)
	}

	// A second lookup for the same OID must be served from the cache,
	// with no further wire traffic — the fake server above only answers
	// one round of Parse/Describe/Bind/Execute/Sync.
	name2, err := conn.ResolveRelationName(ctx, 16412)
	if err != nil {
		t.Fatalf("ResolveRelationName (cached): %v", err)
	}
	if name2 != "users" {
		t.Errorf("expected cached %q, got %q", "users", name2)
	}
	if queries != 1 {
		t.Errorf("expected exactly 1 query round trip, got %d", queries)
	}

	fs.wait(t)
}

func TestResolveRelationNameUnknownOID(t *testing.T) {
	fs := newFakeServer(t, func(conn net.Conn) error {
		r := bufio.NewReader(conn)
		if _, err := readUntypedMsg(r); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendAuth, (&payloadBuilder{}).int32(0).build()); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendReadyForQuery, []byte{'I'}); err != nil {
			return err
		}

		for _, want := range []byte{byte(types.FrontendParse), byte(types.FrontendDescribe), byte(types.FrontendBind), byte(types.FrontendExecute), byte(types.FrontendSync)} {
			typ, _, err := readFrontendMsg(r)
			if err != nil {
				return err
			}
			if typ != want {
				return nil
			}
		}

		if err := writeBackendMsg(conn, types.BackendParseComplete, nil); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendParameterDescription, (&payloadBuilder{}).int16(1).uint32(uint32(types.OIDInt8)).build()); err != nil {
			return err
		}
		if err := writeBackendMsg(conn, types.BackendBindComplete, nil); err != nil {
			return err
		}

		rowDesc := (&payloadBuilder{}).
			int16(1).
			cstring("relname").
			uint32(0).
			int16(1).
			uint32(uint32(types.OIDText)).
			int16(-1).
			int32(-1).
			int16(int16(types.BinaryFormat)).
			build()
		if err := writeBackendMsg(conn, types.BackendRowDescription, rowDesc); err != nil {
			return err
		}

		if err := writeBackendMsg(conn, types.BackendCommandComplete, (&payloadBuilder{}).cstring("SELECT 0").build()); err != nil {
			return err
		}
		return writeBackendMsg(conn, types.BackendReadyForQuery, []byte{'I'})
	})
	host, port := fs.hostPort()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Connect(ctx, Config{Host: host, Port: port, User: "alice", Database: "appdb"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ResolveRelationName(ctx, 99999); err == nil {
		t.Fatal("expected an error resolving an OID with no matching pg_class row")
	}

	fs.wait(t)
}
