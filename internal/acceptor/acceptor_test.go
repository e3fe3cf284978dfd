package acceptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/session"
)

type fakeRegistrar struct {
	events     chan session.ToRegistry
	registered chan *session.Handle
	nextID     uint64
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		events:     make(chan session.ToRegistry, 16),
		registered: make(chan *session.Handle, 16),
	}
}

func (f *fakeRegistrar) NextID() session.ID {
	f.nextID++
	return session.ID(f.nextID)
}

func (f *fakeRegistrar) Register(_ context.Context, h *session.Handle) {
	f.registered <- h
}

func (f *fakeRegistrar) Events() chan<- session.ToRegistry {
	return f.events
}

func TestServeHTTPRejectsNonUpgradeRequest(t *testing.T) {
	a := New(newFakeRegistrar(), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ocpp/CP1", nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "WebSocket upgrade") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestServeHTTPRejectsBadPath(t *testing.T) {
	a := New(newFakeRegistrar(), nil, zap.NewNop())

	cases := []string{"/ocpp/", "/ocpp/CP1/extra", "/wrong/CP1", "/ocpp"}
	for _, path := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("path %q: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestServeHTTPRejectsQueryString(t *testing.T) {
	a := New(newFakeRegistrar(), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ocpp/CP1?foo=bar", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a query string, got %d", rec.Code)
	}
}

func TestServeHTTPUpgradesAndRegisters(t *testing.T) {
	reg := newFakeRegistrar()
	a := New(reg, nil, zap.NewNop())

	server := httptest.NewServer(a)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ocpp/CP1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case h := <-reg.registered:
		if h.Name != "CP1" {
			t.Fatalf("expected station name CP1, got %q", h.Name)
		}
		if h.ID != session.ID(1) {
			t.Fatalf("expected the first minted id to be 1, got %d", h.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session registration")
	}
}

func TestStationNameGrammar(t *testing.T) {
	cases := []struct {
		path string
		name string
		ok   bool
	}{
		{"/ocpp/CP1", "CP1", true},
		{"ocpp/CP1", "CP1", true},
		{"/ocpp/CP1/", "CP1", true},
		{"/ocpp/", "", false},
		{"/ocpp", "", false},
		{"/ocpp/CP1/extra", "", false},
		{"/wrong/CP1", "", false},
		{"/", "", false},
	}
	for _, c := range cases {
		name, ok := stationName(c.path)
		if ok != c.ok || (ok && name != c.name) {
			t.Fatalf("stationName(%q) = (%q, %v), want (%q, %v)", c.path, name, ok, c.name, c.ok)
		}
	}
}
