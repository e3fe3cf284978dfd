package v16

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/metrics"
	"github.com/seu-repo/ocpp-csms/internal/resilience"
)

// Message is one decoded-or-pending Call handed to the Dispatcher: the raw
// frame text plus a single-use reply sink, mirroring the source's
// ToController::Message(String, oneshot::Sender<String>).
type Message struct {
	StationName string
	Text        string
	Reply       chan<- string
}

// Dispatcher owns the registered handlers and processes one decoded Call at
// a time. It is strictly sequential: every invocation of Run's loop body
// happens on the same goroutine, which is what guarantees the Dispatcher
// produces responses in the order it consumes requests (spec.md §5).
type Dispatcher struct {
	registry *Registry
	breakers *resilience.Manager
	recorder metrics.Recorder
	log      *zap.Logger

	inbox chan Message
}

// NewDispatcher builds a Dispatcher around registry. breakers and recorder
// may be nil: nil breakers means handlers are invoked directly with no
// circuit protection, and a nil recorder discards every observation.
func NewDispatcher(registry *Registry, breakers *resilience.Manager, recorder metrics.Recorder, log *zap.Logger) *Dispatcher {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Dispatcher{
		registry: registry,
		breakers: breakers,
		recorder: recorder,
		log:      log,
		inbox:    make(chan Message, 64),
	}
}

// Inbox returns the send-only side of the Dispatcher's mailbox, used by the
// Registry to hand off decoded Call text for a station.
func (d *Dispatcher) Inbox() chan<- Message {
	return d.inbox
}

// Run drains the Dispatcher's mailbox until ctx is cancelled. Call it once,
// from a single goroutine, for the lifetime of the process — this is the
// "single task owning the registered handlers" the spec requires.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.inbox:
			d.process(ctx, msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg Message) {
	start := time.Now()
	reply := d.handle(ctx, msg.StationName, msg.Text)
	d.recorder.DispatchLatency(time.Since(start))
	msg.Reply <- reply
}

func (d *Dispatcher) handle(ctx context.Context, stationName, text string) string {
	call, decErr := Decode([]byte(text))
	if decErr != nil {
		if !decErr.HasUUID {
			// No UUID could be recovered: per spec.md §7/§9, no response is
			// addressable, so we only log.
			if d.log != nil {
				d.log.Warn("dropping unparseable envelope with no recoverable UUID", zap.Error(decErr))
			}
			return ""
		}
		if d.log != nil {
			d.log.Warn("decode failure", zap.String("uuid", decErr.UUID), zap.Error(decErr))
		}
		out, err := EncodeError(decErr.UUID, decErr.CallError)
		if err != nil {
			if d.log != nil {
				d.log.Error("failed to encode CallError", zap.Error(err))
			}
			return ""
		}
		return string(out)
	}

	d.recorder.Call(string(call.Action))

	handler := d.registry.Lookup(call.Action)
	if handler == nil {
		unsupported := UnsupportedActionError(string(call.Action))
		d.recorder.CallError(string(unsupported.Code))
		out, _ := EncodeError(call.UUID, unsupported)
		return string(out)
	}

	result := d.invoke(ctx, stationName, call, handler)

	if result.Err != nil {
		d.recorder.CallError(string(result.Err.Code))
		out, err := EncodeError(call.UUID, result.Err)
		if err != nil {
			if d.log != nil {
				d.log.Error("failed to encode CallError", zap.Error(err))
			}
			return ""
		}
		return string(out)
	}

	out, err := Encode(call.UUID, call.Action, result.Response)
	if err != nil {
		if d.log != nil {
			d.log.Error("failed to encode CallResult", zap.Error(err))
		}
		fallback, _ := EncodeError(call.UUID, NewCallError(ErrorGenericError, err.Error()))
		return string(fallback)
	}
	return string(out)
}

func (d *Dispatcher) invoke(ctx context.Context, stationName string, call *Call, handler Handler) OcppResult {
	if d.breakers == nil {
		return d.safeInvoke(ctx, stationName, call, handler)
	}

	raw, err := d.breakers.Execute(string(call.Action), func() (any, error) {
		result := d.safeInvoke(ctx, stationName, call, handler)
		if result.Err != nil {
			return result, fmt.Errorf("%s", result.Err.Error())
		}
		return result, nil
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return Fail(NewCallError(ErrorInternalError, "handler temporarily unavailable"))
		}
		if result, ok := raw.(OcppResult); ok {
			return result
		}
		return Fail(NewCallError(ErrorInternalError, err.Error()))
	}
	return raw.(OcppResult)
}

// safeInvoke recovers a handler panic into an InternalError CallError so a
// misbehaving embedder handler can never take down the Dispatcher's
// single-goroutine loop.
func (d *Dispatcher) safeInvoke(ctx context.Context, stationName string, call *Call, handler Handler) (result OcppResult) {
	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.Error("handler panicked", zap.String("action", string(call.Action)), zap.Any("recovered", r))
			}
			result = Fail(NewCallError(ErrorInternalError, fmt.Sprintf("handler panicked: %v", r)))
		}
	}()
	return handler.Handle(ctx, stationName, call.Payload)
}
