// Package acceptor performs the HTTP→WebSocket upgrade and URL-based
// station naming, grounded on the teacher's v16.Server.handleWebSocket but
// generalized onto the Registry/Session split instead of a private
// map[string]*websocket.Conn.
package acceptor

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/metrics"
	"github.com/seu-repo/ocpp-csms/internal/session"
)

const (
	bodyNotUpgrade  = "This endpoint requires a WebSocket upgrade request."
	bodyBadPath     = "Invalid URI format. Expected: /ocpp/{charging_station_name}"
	bodyUpgradeFail = "WebSocket upgrade failed. Please try again."
)

// registrar is the subset of *registry.Registry the Acceptor depends on.
type registrar interface {
	NextID() session.ID
	Register(ctx context.Context, h *session.Handle)
	Events() chan<- session.ToRegistry
}

// Acceptor binds no socket itself — it is an http.Handler mounted by
// cmd/server/main.go, mirroring the teacher's mux.HandleFunc("/ocpp/1.6/",
// ...) registration style but with the station name taken from the full
// remaining path segment per spec.md §6's two-segment grammar.
type Acceptor struct {
	registry registrar
	recorder metrics.Recorder
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New builds an Acceptor. recorder may be nil to disable metrics.
func New(registry registrar, recorder metrics.Recorder, log *zap.Logger) *Acceptor {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Acceptor{
		registry: registry,
		recorder: recorder,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
			// Write nothing here: ServeHTTP answers a failed handshake
			// with its own 500 response.
			Error: func(http.ResponseWriter, *http.Request, int, error) {},
		},
	}
}

// ServeHTTP implements spec.md §4.1 steps 2-5 verbatim: reject non-upgrade
// requests with 426, reject a malformed path with 400, reject a failed
// handshake with 500, and on success mint a SessionId, register the Session,
// and hand it its upgraded connection.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		w.Header().Set("Connection", "Upgrade")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusUpgradeRequired)
		w.Write([]byte(bodyNotUpgrade))
		return
	}

	name, ok := stationName(r.URL.Path)
	if !ok || r.URL.RawQuery != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(bodyBadPath))
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if a.log != nil {
			a.log.Error("websocket upgrade failed", zap.Error(err), zap.String("station", name))
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(bodyUpgradeFail))
		return
	}

	id := a.registry.NextID()
	peer := conn.RemoteAddr()

	handle := session.NewHandle(context.Background(), id, name, peer, conn, a.registry.Events(), a.log)
	a.registry.Register(context.Background(), handle)
	a.recorder.SessionAccepted()

	if a.log != nil {
		a.log.Info("accepted station connection",
			zap.Uint64("session_id", uint64(id)),
			zap.String("station", name),
			zap.Stringer("peer", peer),
		)
	}
}

// stationName validates path against the grammar /ocpp/<name> (exactly two
// non-empty segments, the first literally "ocpp") and returns <name>.
func stationName(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) != 2 {
		return "", false
	}
	if segments[0] != "ocpp" || segments[1] == "" {
		return "", false
	}
	return segments[1], true
}
