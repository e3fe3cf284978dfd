package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// fakeConn is an in-memory Conn double. inbound feeds ReadMessage; every
// WriteMessage appends to written. Closing the connection unblocks any
// pending ReadMessage with an error, mirroring a real socket.
type fakeConn struct {
	inbound chan fakeFrame
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []string
}

type fakeFrame struct {
	msgType int
	data    []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan fakeFrame, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.msgType, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("fakeConn: closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	c.written = append(c.written, string(data))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	copy(out, c.written)
	return out
}

func TestReadLoopForwardsTextFramesAsClientMessage(t *testing.T) {
	conn := newFakeConn()
	toRegistry := make(chan ToRegistry, 4)

	h := NewHandle(context.Background(), 1, "CP1", nil, conn, toRegistry, zap.NewNop())
	defer h.Close()

	conn.inbound <- fakeFrame{msgType: websocket.TextMessage, data: []byte("hello")}

	select {
	case ev := <-toRegistry:
		msg, ok := ev.(ClientMessage)
		if !ok {
			t.Fatalf("expected ClientMessage, got %T", ev)
		}
		if msg.ID != 1 || msg.Text != "hello" {
			t.Fatalf("unexpected ClientMessage: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClientMessage")
	}
}

func TestSendDeliversToTheSocket(t *testing.T) {
	conn := newFakeConn()
	toRegistry := make(chan ToRegistry, 4)

	h := NewHandle(context.Background(), 2, "CP2", nil, conn, toRegistry, zap.NewNop())
	defer h.Close()

	h.Send(context.Background(), "response")

	deadline := time.After(time.Second)
	for {
		if len(conn.snapshot()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the write to reach the socket")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if conn.snapshot()[0] != "response" {
		t.Fatalf("unexpected write: %v", conn.snapshot())
	}
}

func TestCloseFrameEndsSessionAndRaisesClientGone(t *testing.T) {
	conn := newFakeConn()
	toRegistry := make(chan ToRegistry, 4)

	h := NewHandle(context.Background(), 3, "CP3", nil, conn, toRegistry, zap.NewNop())

	conn.inbound <- fakeFrame{msgType: websocket.CloseMessage, data: nil}

	select {
	case ev := <-toRegistry:
		if _, ok := ev.(ClientGone); !ok {
			t.Fatalf("expected ClientGone after a close frame, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClientGone")
	}
}

func TestTransportErrorEndsSessionAndRaisesClientGone(t *testing.T) {
	conn := newFakeConn()
	toRegistry := make(chan ToRegistry, 4)

	h := NewHandle(context.Background(), 4, "CP4", nil, conn, toRegistry, zap.NewNop())

	// Simulate a transport failure by closing the connection out from under
	// the read loop, same as a dropped TCP connection would.
	conn.Close()

	select {
	case ev := <-toRegistry:
		if _, ok := ev.(ClientGone); !ok {
			t.Fatalf("expected ClientGone after a transport error, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClientGone")
	}

	h.Close()
}

func TestCloseUnblocksBothHalvesPromptly(t *testing.T) {
	conn := newFakeConn()
	toRegistry := make(chan ToRegistry, 4)

	h := NewHandle(context.Background(), 5, "CP5", nil, conn, toRegistry, zap.NewNop())
	h.Close()

	select {
	case <-toRegistry:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClientGone after Close")
	}
}
