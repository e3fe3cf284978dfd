// Package eventbus publishes station lifecycle events to NATS, adapted from
// the teacher's internal/adapter/queue/nats.go. It is a best-effort
// side-channel fan-out, never a dependency of the Call→Response path.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectStationConnected    = "station.connected"
	SubjectStationDisconnected = "station.disconnected"
)

type connectedEvent struct {
	SessionID uint64 `json:"session_id"`
	Station   string `json:"station"`
	At        string `json:"at"`
}

// Publisher is a NATS-backed lifecycle publisher.
type Publisher struct {
	conn *nats.Conn
	log  *zap.Logger
}

// Connect dials url and returns a ready Publisher. Callers should treat a
// connect failure as non-fatal to the CSMS runtime: log it and fall back to
// Noop.
func Connect(url string, log *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats: %w", err)
	}
	if log != nil {
		log.Info("connected to event bus", zap.String("url", url))
	}
	return &Publisher{conn: nc, log: log}, nil
}

// StationConnected publishes to SubjectStationConnected. Publish errors are
// logged, never propagated: a down NATS broker must not affect session
// admission.
func (p *Publisher) StationConnected(id uint64, name string) {
	p.publish(SubjectStationConnected, id, name)
}

// StationDisconnected publishes to SubjectStationDisconnected.
func (p *Publisher) StationDisconnected(id uint64, name string) {
	p.publish(SubjectStationDisconnected, id, name)
}

func (p *Publisher) publish(subject string, id uint64, name string) {
	payload, err := json.Marshal(connectedEvent{SessionID: id, Station: name, At: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil && p.log != nil {
		p.log.Warn("event bus publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Close closes the underlying NATS connection; it does not drain it first.
func (p *Publisher) Close() {
	p.conn.Close()
}

// Noop discards every lifecycle event; used when the event bus is disabled
// in configuration.
type Noop struct{}

func (Noop) StationConnected(uint64, string)    {}
func (Noop) StationDisconnected(uint64, string) {}
