package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/pgwire/client/pgpool"
)

func newTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	pool, err := pgpool.Open(context.Background(), pgpool.Config{Size: 0})
	if err != nil {
		t.Fatalf("pgpool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	s := New(pool, nil)

	mr := mux.NewRouter()
	mr.HandleFunc("/status", s.statusHandler).Methods("GET")
	mr.HandleFunc("/health", s.healthHandler).Methods("GET")
	mr.HandleFunc("/ready", s.readyHandler).Methods("GET")

	return s, mr
}

func TestStatusHandler(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := body["pool"]; !ok {
		t.Error("expected \"pool\" key in status response")
	}
}

func TestHealthHandlerUnhealthyWhenEmpty(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for a pool with zero connections, got %d", rr.Code)
	}
}

func TestReadyHandlerNotReadyWhenEmpty(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/ready", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for a pool with zero connections, got %d", rr.Code)
	}
}
