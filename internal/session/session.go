// Package session implements the per-connection I/O pair: a read half that
// forwards inbound frames to the registry and a write half fed by a
// private mailbox, joined the way the source's client_loop.rs joins
// tcp_read/tcp_write with tokio::try_join!.
package session

import (
	"context"
	"net"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ID is the monotonically increasing station identifier minted by the
// registry at upgrade time.
type ID uint64

// ToRegistry is the set of events a Session's read half can raise on the
// registry. It mirrors the source's ToServer enum's client-facing cases.
type ToRegistry interface {
	isToRegistry()
}

// ClientMessage is forwarded for every inbound text frame.
type ClientMessage struct {
	ID   ID
	Text string
}

func (ClientMessage) isToRegistry() {}

// ClientGone is forwarded once, either on a close frame or when the read
// loop ends with a transport error.
type ClientGone struct {
	ID ID
}

func (ClientGone) isToRegistry() {}

// Conn is the subset of *websocket.Conn the Session needs; it exists so
// tests can substitute an in-memory double.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Handle is the registry-facing view of a live session: its identity plus
// the mailbox its write half drains. Capacity 64, per spec.md §3/§5.
type Handle struct {
	ID   ID
	Name string
	Peer net.Addr

	outbound chan string
	cancel   context.CancelFunc
}

// Mailbox capacity for a session's outbound queue.
const mailboxCapacity = 64

// NewHandle constructs a Handle and spawns its backing I/O goroutines.
// toRegistry receives ClientMessage/ClientGone for the lifetime of the
// connection. Registering the Handle with the registry is the caller's job
// (the acceptor calls Registry.Register right after NewHandle returns); the
// I/O goroutines are already running when that call is made.
func NewHandle(ctx context.Context, id ID, name string, peer net.Addr, conn Conn, toRegistry chan<- ToRegistry, log *zap.Logger) *Handle {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		ID:       id,
		Name:     name,
		Peer:     peer,
		outbound: make(chan string, mailboxCapacity),
		cancel:   cancel,
	}

	go h.run(parent, ctx, conn, toRegistry, log)

	return h
}

// Send enqueues a response for delivery to the station. It blocks if the
// mailbox is full; callers must not call Send after the session has been
// removed from the registry (spec.md §3 invariant).
func (h *Handle) Send(ctx context.Context, text string) {
	select {
	case h.outbound <- text:
	case <-ctx.Done():
	}
}

// Close cancels both I/O halves and closes the underlying socket. Dropping
// a Handle this way is the strong-ownership abort the source performs in
// ClientHandle's Drop impl.
func (h *Handle) Close() {
	h.cancel()
}

// run drives the read and write halves until either one ends, then tears
// down the other: closing the socket unblocks a ReadMessage in flight, and
// cancelling ctx unblocks the write half's select. This reproduces
// try_join!'s "first task to finish ends the pair" without a Go
// errgroup.Wait() barrier, which would otherwise wait for both halves even
// when one is stuck in a blocking socket read. ClientGone is sent under
// parent, since ctx itself is already cancelled by then.
func (h *Handle) run(parent, ctx context.Context, conn Conn, toRegistry chan<- ToRegistry, log *zap.Logger) {
	group, gctx := errgroup.WithContext(ctx)
	done := make(chan error, 2)

	group.Go(func() error {
		err := readLoop(gctx, h.ID, conn, toRegistry, log)
		done <- err
		return err
	})
	group.Go(func() error {
		err := writeLoop(gctx, conn, h.outbound)
		done <- err
		return err
	})

	first := <-done
	conn.Close()
	h.cancel()
	<-done

	if first != nil && log != nil {
		log.Debug("session ended", zap.Uint64("session_id", uint64(h.ID)), zap.Error(first))
	}

	_ = group.Wait()

	select {
	case toRegistry <- ClientGone{ID: h.ID}:
	case <-parent.Done():
	}
}

func readLoop(ctx context.Context, id ID, conn Conn, toRegistry chan<- ToRegistry, log *zap.Logger) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch msgType {
		case websocket.TextMessage:
			select {
			case toRegistry <- ClientMessage{ID: id, Text: string(data)}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case websocket.CloseMessage:
			if log != nil {
				log.Info("received close frame", zap.Uint64("session_id", uint64(id)))
			}
			return nil
		default:
			if log != nil {
				log.Debug("ignoring non-text frame", zap.Int("frame_type", msgType))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func writeLoop(ctx context.Context, conn Conn, outbound <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text := <-outbound:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				return err
			}
		}
	}
}
