package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL = flag.String("server", "ws://localhost:9100/ocpp/CP001", "OCPP 1.6 CSMS WebSocket URL")
	vendor    = flag.String("vendor", "OCPP-CSMS", "Charge point vendor")
	model     = flag.String("model", "SimulatorV1", "Charge point model")
	interval  = flag.Int("heartbeat", 60, "Heartbeat interval in seconds")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	station := NewStation(Config{
		ServerURL:         *serverURL,
		Vendor:            *vendor,
		Model:             *model,
		HeartbeatInterval: *interval,
	}, logger)

	if err := station.Connect(); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer station.Close()

	if err := station.BootNotification(); err != nil {
		logger.Error("boot notification failed", zap.Error(err))
	}

	go station.RunHeartbeats()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down simulator")
}
