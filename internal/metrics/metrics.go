// Package metrics exposes the runtime's Prometheus collectors, grounded on
// the teacher's internal/observability/telemetry/metrics.go (global
// promauto collectors plus small Record* helpers) but scoped to what the
// Acceptor, Registry, and Dispatcher actually observe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_sessions_accepted_total",
		Help: "Total WebSocket upgrades completed by the acceptor.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_sessions_active",
		Help: "Number of stations currently registered.",
	})

	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_calls_total",
		Help: "Total OCPP Calls processed, by action.",
	}, []string{"action"})

	callErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_call_errors_total",
		Help: "Total CallError responses emitted, by error code.",
	}, []string{"code"})

	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocpp_dispatch_latency_seconds",
		Help:    "Time from Dispatcher receiving a Message to producing a reply.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})
)

// Recorder is the narrow interface the acceptor/registry/dispatcher depend
// on, so a disabled metrics config can substitute Noop without the rest of
// the runtime branching on a boolean.
type Recorder interface {
	SessionAccepted()
	SessionRegistered()
	SessionRemoved()
	Call(action string)
	CallError(code string)
	DispatchLatency(d time.Duration)
}

// Prometheus records onto the package-level collectors above.
type Prometheus struct{}

func (Prometheus) SessionAccepted()   { sessionsAccepted.Inc() }
func (Prometheus) SessionRegistered() { sessionsActive.Inc() }
func (Prometheus) SessionRemoved()    { sessionsActive.Dec() }
func (Prometheus) Call(action string) { callsTotal.WithLabelValues(action).Inc() }
func (Prometheus) CallError(code string) {
	callErrorsTotal.WithLabelValues(code).Inc()
}
func (Prometheus) DispatchLatency(d time.Duration) {
	dispatchLatency.Observe(d.Seconds())
}

// Noop discards every observation; used when metrics are disabled in
// configuration.
type Noop struct{}

func (Noop) SessionAccepted()           {}
func (Noop) SessionRegistered()         {}
func (Noop) SessionRemoved()            {}
func (Noop) Call(string)                {}
func (Noop) CallError(string)           {}
func (Noop) DispatchLatency(time.Duration) {}

var (
	_ Recorder = Prometheus{}
	_ Recorder = Noop{}
)
