// Package registry implements the Server actor: the single goroutine that
// owns every live session, mints SessionIds, and correlates each inbound
// Call with its eventual response. It is the direct transliteration of the
// source's server_loop.rs Server::handle_message, generalized onto the
// hub's register/unregister-channel style (internal/adapter/websocket/hub.go).
package registry

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/metrics"
	"github.com/seu-repo/ocpp-csms/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-csms/internal/session"
)

// LifecycleObserver receives best-effort notifications of session birth and
// death, keyed by the raw session id so callers (internal/eventbus,
// internal/presence) need not import the session package. Both methods must
// not block; those implementations are fire-and-forget or bounded with
// their own short timeouts.
type LifecycleObserver interface {
	StationConnected(id uint64, name string)
	StationDisconnected(id uint64, name string)
}

// noopObserver discards every lifecycle event; used when the caller wires in
// no observers.
type noopObserver struct{}

func (noopObserver) StationConnected(uint64, string)    {}
func (noopObserver) StationDisconnected(uint64, string) {}

// dispatcherInbox is the subset of *v16.Dispatcher the Registry depends on,
// named so tests can substitute a fake without a real Dispatcher/breaker
// stack.
type dispatcherInbox interface {
	Inbox() chan<- v16.Message
}

var _ dispatcherInbox = (*v16.Dispatcher)(nil)

// Registry owns map[session.ID]*session.Handle and the atomic id counter the
// Acceptor consults. Its Run loop is the sole writer of the map, so no
// additional locking is needed around it — every mutation happens on the
// same goroutine that drains the events channel.
type Registry struct {
	nextID atomic.Uint64

	dispatcher dispatcherInbox
	observer   LifecycleObserver
	recorder   metrics.Recorder
	log        *zap.Logger

	sessions   map[session.ID]*session.Handle
	events     chan session.ToRegistry
	newClients chan *session.Handle
}

// New builds a Registry. observer and recorder may be nil, in which case
// lifecycle events and metrics are silently discarded.
func New(dispatcher dispatcherInbox, observer LifecycleObserver, recorder metrics.Recorder, log *zap.Logger) *Registry {
	if observer == nil {
		observer = noopObserver{}
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Registry{
		dispatcher: dispatcher,
		observer:   observer,
		recorder:   recorder,
		log:        log,
		sessions:   make(map[session.ID]*session.Handle),
		events:     make(chan session.ToRegistry, 64),
		newClients: make(chan *session.Handle, 64),
	}
}

// NextID mints the next monotonically increasing SessionId. Safe to call
// concurrently; the Acceptor calls this directly rather than routing through
// the events channel, matching spec.md §4.1/§4.5's "constant-time atomic"
// requirement.
func (r *Registry) NextID() session.ID {
	return session.ID(r.nextID.Add(1))
}

// Events returns the send-only side of the Registry's mailbox. A Session's
// read half sends ClientMessage/ClientGone on it; new sessions are admitted
// separately through Register.
func (r *Registry) Events() chan<- session.ToRegistry {
	return r.events
}

// Register admits a freshly accepted session into the map. Collisions
// cannot occur: ids are minted by the same atomic counter every caller
// uses. Kept on its own channel rather than folded into session.ToRegistry
// because registration is raised by the Acceptor, not by the session's own
// read half, and the session package must not import the registry package.
func (r *Registry) Register(ctx context.Context, h *session.Handle) {
	select {
	case r.newClients <- h:
	case <-ctx.Done():
	}
}

// Run drains NewClient registrations and session lifecycle events until ctx
// is cancelled. Call it once, from a single goroutine, for the lifetime of
// the process.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-r.newClients:
			r.handleNewClient(h)
		case event := <-r.events:
			r.handleEvent(ctx, event)
		}
	}
}

func (r *Registry) handleNewClient(h *session.Handle) {
	r.sessions[h.ID] = h
	r.observer.StationConnected(uint64(h.ID), h.Name)
	r.recorder.SessionRegistered()
	if r.log != nil {
		r.log.Info("station connected",
			zap.Uint64("session_id", uint64(h.ID)),
			zap.String("station", h.Name),
		)
	}
}

func (r *Registry) handleEvent(ctx context.Context, event session.ToRegistry) {
	switch e := event.(type) {
	case session.ClientGone:
		r.handleClientGone(e)
	case session.ClientMessage:
		r.handleClientMessage(ctx, e)
	}
}

// handleClientGone removes id from the map. A second ClientGone for an id
// already absent is a no-op, satisfying spec.md §8's idempotent-removal
// property.
func (r *Registry) handleClientGone(e session.ClientGone) {
	h, ok := r.sessions[e.ID]
	if !ok {
		return
	}
	delete(r.sessions, e.ID)
	r.observer.StationDisconnected(uint64(e.ID), h.Name)
	r.recorder.SessionRemoved()
	if r.log != nil {
		r.log.Info("station disconnected", zap.Uint64("session_id", uint64(e.ID)), zap.String("station", h.Name))
	}
}

// handleClientMessage is the Registry's serialization point: it opens a
// one-shot reply channel, forwards the Call text to the Dispatcher, awaits
// the encoded response, and enqueues it on the originating session's
// mailbox before processing the next event. This await is what spec.md
// §4.5 calls "the serialization point that gates the Registry's next
// message" — the straightforward, ordering-safe default. A per-message
// goroutine that raced multiple stations' deliveries concurrently would
// need its own per-session sequencing to keep send order matching receive
// order; blocking here gets that property for free from the single Run
// loop instead.
func (r *Registry) handleClientMessage(ctx context.Context, e session.ClientMessage) {
	h, ok := r.sessions[e.ID]
	if !ok {
		if r.log != nil {
			r.log.Warn("message from unregistered session", zap.Uint64("session_id", uint64(e.ID)))
		}
		return
	}

	reply := make(chan string, 1)
	msg := v16.Message{StationName: h.Name, Text: e.Text, Reply: reply}

	select {
	case r.dispatcher.Inbox() <- msg:
	case <-ctx.Done():
		return
	}

	select {
	case text := <-reply:
		if text != "" {
			h.Send(ctx, text)
		}
	case <-ctx.Done():
	}
}
