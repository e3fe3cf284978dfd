package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/acceptor"
	"github.com/seu-repo/ocpp-csms/internal/eventbus"
	"github.com/seu-repo/ocpp-csms/internal/metrics"
	"github.com/seu-repo/ocpp-csms/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-csms/internal/platform/logging"
	"github.com/seu-repo/ocpp-csms/internal/presence"
	"github.com/seu-repo/ocpp-csms/internal/registry"
	"github.com/seu-repo/ocpp-csms/internal/resilience"
	"github.com/seu-repo/ocpp-csms/pkg/config"
)

const (
	serviceName    = "ocpp-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// 2. Initialize logger
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting "+serviceName, zap.String("version", serviceVersion))

	// 3. Initialize event bus (optional)
	var observer registry.LifecycleObserver = noopObserver{}
	if cfg.EventBus.Enabled {
		bus, err := eventbus.Connect(cfg.EventBus.URL, logger)
		if err != nil {
			logger.Warn("event bus not available, running without it", zap.Error(err))
		} else {
			defer bus.Close()
			observer = combineObservers(observer, busObserver{bus})
		}
	}

	// 4. Initialize presence mirror (optional)
	if cfg.Presence.Enabled {
		mirror, err := presence.Connect(cfg.Presence.URL, logger)
		if err != nil {
			logger.Warn("presence store not available, running without it", zap.Error(err))
		} else {
			defer mirror.Close()
			observer = combineObservers(observer, presenceObserver{mirror})
		}
	}

	// 5. Initialize metrics
	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.Prometheus{}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("starting metrics endpoint", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	// 6. Initialize resilience (per-action circuit breakers)
	settings := resilience.DefaultSettings()
	if cfg.Resilience.MaxRequests > 0 {
		settings = resilience.Settings{
			MaxRequests: cfg.Resilience.MaxRequests,
			Interval:    cfg.Resilience.Interval,
			Timeout:     cfg.Resilience.Timeout,
		}
	}
	breakers := resilience.NewManager(settings, logger)

	// 7. Initialize the OCPP handler registry and dispatcher
	handlers := v16.NewRegistry()
	dispatcher := v16.NewDispatcher(handlers, breakers, recorder, logger)

	// 8. Initialize the session registry
	reg := registry.New(dispatcher, observer, recorder, logger)

	// 9. Initialize the acceptor and mount it on the HTTP mux
	acc := acceptor.New(reg, recorder, logger)
	mux := http.NewServeMux()
	mux.Handle("/ocpp/", acc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 10. Run the dispatcher and registry for the lifetime of the process
	go dispatcher.Run(ctx)
	go reg.Run(ctx)

	// 11. Start the listener
	server := &http.Server{Addr: cfg.OCPP.Address, Handler: mux}
	go func() {
		logger.Info("starting OCPP WebSocket listener", zap.String("address", cfg.OCPP.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("OCPP listener failed", zap.Error(err))
		}
	}()

	// 12. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down listener", zap.Error(err))
	}
	cancel()
	logger.Info("server exited gracefully")
}

// noopObserver is the zero-collaborator LifecycleObserver used when neither
// the event bus nor the presence mirror is configured.
type noopObserver struct{}

func (noopObserver) StationConnected(id uint64, name string)    {}
func (noopObserver) StationDisconnected(id uint64, name string) {}

// busObserver adapts eventbus.Publisher to registry.LifecycleObserver.
type busObserver struct{ bus *eventbus.Publisher }

func (o busObserver) StationConnected(id uint64, name string)    { o.bus.StationConnected(id, name) }
func (o busObserver) StationDisconnected(id uint64, name string) { o.bus.StationDisconnected(id, name) }

// presenceObserver adapts presence.Mirror to registry.LifecycleObserver.
type presenceObserver struct{ mirror *presence.Mirror }

func (o presenceObserver) StationConnected(id uint64, name string) { o.mirror.Online(id, name) }
func (o presenceObserver) StationDisconnected(id uint64, name string) {
	o.mirror.Offline(id, name)
}

// multiObserver fans a lifecycle event out to every wrapped observer.
type multiObserver []registry.LifecycleObserver

func combineObservers(observers ...registry.LifecycleObserver) multiObserver {
	return multiObserver(observers)
}

func (m multiObserver) StationConnected(id uint64, name string) {
	for _, o := range m {
		o.StationConnected(id, name)
	}
}

func (m multiObserver) StationDisconnected(id uint64, name string) {
	for _, o := range m {
		o.StationDisconnected(id, name)
	}
}
