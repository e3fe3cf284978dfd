package v16

import (
	"context"
	"fmt"
	"time"
)

// OcppResult is the outcome of a handler invocation: either a response
// payload or a CallError the dispatcher should serialize in its place.
type OcppResult struct {
	Response any
	Err      *CallError
}

// Ok wraps a successful response payload.
func Ok(response any) OcppResult { return OcppResult{Response: response} }

// Fail wraps a CallError outcome.
func Fail(err *CallError) OcppResult { return OcppResult{Err: err} }

// Handler processes one decoded Call payload for a given action and
// station. It is polymorphic over the (request, response) pair the way the
// source's boxed trait objects are; the portable Go shape is a function
// keyed by action in a Registry.
type Handler interface {
	Handle(ctx context.Context, stationName string, request any) OcppResult
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(ctx context.Context, stationName string, request any) OcppResult

func (f HandlerFunc) Handle(ctx context.Context, stationName string, request any) OcppResult {
	return f(ctx, stationName, request)
}

// Registry holds at most one handler per action, installed by the embedding
// application before the server starts. Lookup succeeds for every action in
// SupportedActions: an action with no registered handler falls back to the
// built-in default. Any other action with no registration yields nil.
type Registry struct {
	handlers map[Action]Handler
	defaults map[Action]Handler
}

// NewRegistry returns a Registry pre-populated with the built-in default
// handlers for every supported action.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Action]Handler),
		defaults: defaultHandlers(),
	}
}

// Register installs handler for action, overriding any previous
// registration. Must be called before the server starts; the handler set
// is treated as immutable once the dispatcher begins processing messages.
func (r *Registry) Register(action Action, handler Handler) {
	r.handlers[action] = handler
}

// Lookup returns the handler for action: the embedder's registration if
// present, otherwise the built-in default.
func (r *Registry) Lookup(action Action) Handler {
	if h, ok := r.handlers[action]; ok {
		return h
	}
	return r.defaults[action]
}

func defaultHandlers() map[Action]Handler {
	nextTransactionID := newTransactionCounter()

	return map[Action]Handler{
		ActionHeartbeat: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(HeartbeatResponse{CurrentTime: nowRFC3339()})
		}),
		ActionBootNotification: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(BootNotificationResponse{
				Status:      RegistrationAccepted,
				CurrentTime: nowRFC3339(),
				Interval:    60,
			})
		}),
		ActionStatusNotification: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(StatusNotificationResponse{})
		}),
		ActionAuthorize: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(AuthorizeResponse{IdTagInfo: IdTagInfo{Status: IdTagAccepted}})
		}),
		ActionStartTransaction: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(StartTransactionResponse{
				TransactionId: nextTransactionID(),
				IdTagInfo:     IdTagInfo{Status: IdTagAccepted},
			})
		}),
		ActionStopTransaction: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(StopTransactionResponse{IdTagInfo: &IdTagInfo{Status: IdTagAccepted}})
		}),
		ActionMeterValues: HandlerFunc(func(_ context.Context, _ string, _ any) OcppResult {
			return Ok(MeterValuesResponse{})
		}),
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// newTransactionCounter mints locally-unique transaction ids for the
// default StartTransaction handler. It is not a substitute for a real
// billing system's transaction ledger (out of scope, see SPEC_FULL.md §1).
func newTransactionCounter() func() int {
	id := 0
	return func() int {
		id++
		return id
	}
}

// UnsupportedActionError builds the CallError the dispatcher uses when
// Lookup returns no handler for a decoded action.
func UnsupportedActionError(action string) *CallError {
	return NewCallError(ErrorNotSupported, fmt.Sprintf("Unknown message type: '%s'.", action))
}
