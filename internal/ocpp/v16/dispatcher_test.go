package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/resilience"
)

func mustEnvelope(t *testing.T, raw string) []json.RawMessage {
	t.Helper()
	var envelope []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		t.Fatalf("invalid JSON in test fixture %q: %v", raw, err)
	}
	return envelope
}

func TestDispatcherHappyPathHeartbeat(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil, zap.NewNop())

	reply := make(chan string, 1)
	d.process(context.Background(), Message{StationName: "CP1", Text: `[2,"abc","Heartbeat",{}]`, Reply: reply})

	envelope := mustEnvelope(t, <-reply)
	if len(envelope) != 4 {
		t.Fatalf("expected 4-element CallResult, got %d", len(envelope))
	}
	var uid string
	json.Unmarshal(envelope[1], &uid)
	if uid != "abc" {
		t.Fatalf("expected echoed uuid 'abc', got %q", uid)
	}
}

func TestDispatcherUnknownActionYieldsNotSupported(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil, zap.NewNop())

	reply := make(chan string, 1)
	d.process(context.Background(), Message{StationName: "CP1", Text: `[2,"x","SomeFutureAction",{}]`, Reply: reply})

	out := <-reply
	envelope := mustEnvelope(t, out)
	var msgType int
	json.Unmarshal(envelope[0], &msgType)
	if msgType != MessageTypeCallError {
		t.Fatalf("expected CallError, got message type %d: %s", msgType, out)
	}
	var code string
	json.Unmarshal(envelope[2], &code)
	if code != string(ErrorNotSupported) {
		t.Fatalf("expected NotSupported, got %s", code)
	}
}

func TestDispatcherMalformedEnvelopeWithoutUUIDProducesNoReply(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil, zap.NewNop())

	out := d.handle(context.Background(), "CP1", `[2,"y"]`)
	if out != "" {
		t.Fatalf("expected no response for an unaddressable decode failure, got %q", out)
	}
}

func TestDispatcherProcessesMessagesInOrder(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	const n = 50
	replies := make([]chan string, n)
	for i := 0; i < n; i++ {
		replies[i] = make(chan string, 1)
		uid := fmt.Sprintf("u%d", i)
		d.inbox <- Message{StationName: "CP1", Text: fmt.Sprintf(`[2,%q,"Heartbeat",{}]`, uid), Reply: replies[i]}
	}

	for i := 0; i < n; i++ {
		select {
		case out := <-replies[i]:
			envelope := mustEnvelope(t, out)
			var uid string
			json.Unmarshal(envelope[1], &uid)
			if uid != fmt.Sprintf("u%d", i) {
				t.Fatalf("expected reply %d to carry uuid u%d, got %s", i, i, uid)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for reply %d", i)
		}
	}
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ActionHeartbeat, HandlerFunc(func(ctx context.Context, station string, req any) OcppResult {
		panic("boom")
	}))
	d := NewDispatcher(reg, nil, nil, zap.NewNop())

	reply := make(chan string, 1)
	d.process(context.Background(), Message{StationName: "CP1", Text: `[2,"p1","Heartbeat",{}]`, Reply: reply})

	envelope := mustEnvelope(t, <-reply)
	var msgType int
	json.Unmarshal(envelope[0], &msgType)
	if msgType != MessageTypeCallError {
		t.Fatalf("expected a CallError after handler panic, got message type %d", msgType)
	}
	var code string
	json.Unmarshal(envelope[2], &code)
	if code != string(ErrorInternalError) {
		t.Fatalf("expected InternalError, got %s", code)
	}
}

func TestDispatcherOpenBreakerShortCircuitsToInternalError(t *testing.T) {
	reg := NewRegistry()
	failing := 0
	reg.Register(ActionHeartbeat, HandlerFunc(func(ctx context.Context, station string, req any) OcppResult {
		failing++
		return Fail(NewCallError(ErrorGenericError, "simulated failure"))
	}))

	breakers := resilience.NewManager(resilience.Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute}, zap.NewNop())
	d := NewDispatcher(reg, breakers, nil, zap.NewNop())

	var lastCode string
	for i := 0; i < 8; i++ {
		reply := make(chan string, 1)
		d.process(context.Background(), Message{StationName: "CP1", Text: `[2,"x","Heartbeat",{}]`, Reply: reply})
		envelope := mustEnvelope(t, <-reply)
		json.Unmarshal(envelope[2], &lastCode)
	}

	if lastCode != string(ErrorInternalError) {
		t.Fatalf("expected breaker to be open and return InternalError, got %s", lastCode)
	}
	if failing >= 8 {
		t.Fatalf("expected the breaker to stop invoking the handler once open, but it was invoked every time")
	}
}
