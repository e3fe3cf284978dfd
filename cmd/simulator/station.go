package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds the test station's connection parameters.
type Config struct {
	ServerURL         string
	Vendor            string
	Model             string
	HeartbeatInterval int
}

// Station is a minimal OCPP 1.6 charge point used to exercise a CSMS built
// against this module — the message-id/pending-reply bookkeeping is
// adapted from the teacher's OCPP 2.0.1 cmd/simulator/simulator.go, trimmed
// to two actions: BootNotification and Heartbeat.
type Station struct {
	cfg  Config
	conn *websocket.Conn
	log  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage

	stop chan struct{}
}

// NewStation builds a Station. Connect must be called before any Call.
func NewStation(cfg Config, log *zap.Logger) *Station {
	return &Station{
		cfg:     cfg,
		log:     log,
		pending: make(map[string]chan json.RawMessage),
		stop:    make(chan struct{}),
	}
}

// Connect dials cfg.ServerURL and starts the background reader.
func (s *Station) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("simulator: dial %s: %w", s.cfg.ServerURL, err)
	}
	s.conn = conn
	s.log.Info("connected", zap.String("url", s.cfg.ServerURL))

	go s.readLoop()
	return nil
}

// Close stops the reader and closes the socket.
func (s *Station) Close() {
	close(s.stop)
	s.conn.Close()
}

func (s *Station) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				s.log.Error("read error", zap.Error(err))
			}
			return
		}
		s.handle(data)
	}
}

func (s *Station) handle(data []byte) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope) < 3 {
		s.log.Warn("malformed frame from CSMS", zap.ByteString("raw", data))
		return
	}

	var msgType int
	json.Unmarshal(envelope[0], &msgType)
	var uid string
	json.Unmarshal(envelope[1], &uid)

	switch msgType {
	case 3: // CallResult: [3, uuid, action, payload]
		if len(envelope) < 4 {
			return
		}
		s.deliver(uid, envelope[3])
	case 4: // CallError: [4, uuid, code, description, details]
		s.log.Warn("CallError from CSMS", zap.String("uuid", uid), zap.ByteString("body", data))
		s.deliver(uid, nil)
	}
}

func (s *Station) deliver(uid string, payload json.RawMessage) {
	s.mu.Lock()
	ch, ok := s.pending[uid]
	if ok {
		delete(s.pending, uid)
	}
	s.mu.Unlock()
	if ok {
		ch <- payload
	}
}

// call sends a Call envelope and blocks for its CallResult/CallError.
func (s *Station) call(action string, payload any) (json.RawMessage, error) {
	uid := uuid.NewString()
	envelope := []any{2, uid, action, payload}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	reply := make(chan json.RawMessage, 1)
	s.mu.Lock()
	s.pending[uid] = reply
	s.mu.Unlock()

	if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return nil, err
	}

	select {
	case payload := <-reply:
		return payload, nil
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("simulator: timed out waiting for %s response", action)
	}
}

// BootNotification sends a BootNotification Call and logs the response.
func (s *Station) BootNotification() error {
	payload, err := s.call("BootNotification", map[string]string{
		"chargePointVendor": s.cfg.Vendor,
		"chargePointModel":  s.cfg.Model,
	})
	if err != nil {
		return err
	}
	s.log.Info("BootNotification accepted", zap.ByteString("response", payload))
	return nil
}

// RunHeartbeats sends a Heartbeat Call on cfg.HeartbeatInterval until Close
// is called.
func (s *Station) RunHeartbeats() {
	interval := time.Duration(s.cfg.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if _, err := s.call("Heartbeat", map[string]any{}); err != nil {
				s.log.Error("heartbeat failed", zap.Error(err))
			}
		}
	}
}
