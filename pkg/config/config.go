// Package config defines the runtime's configuration surface, trimmed from
// the teacher's pkg/config/config.go down to the sections this OCPP runtime
// actually reads: the listener address, logging, metrics, and the three
// optional ambient collaborators (event bus, presence, resilience).
package config

import "time"

// Config is the root of the runtime's layered configuration.
type Config struct {
	OCPP       OCPPConfig       `mapstructure:"ocpp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
}

// OCPPConfig is spec.md §6's single recognized option (address) plus the
// supplemental default Heartbeat interval the teacher's default handler
// also hard-codes.
type OCPPConfig struct {
	Address                  string `mapstructure:"address"`
	HeartbeatDefaultInterval int    `mapstructure:"heartbeat_default_interval"`
}

// LoggingConfig configures internal/platform/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig toggles the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// EventBusConfig toggles the NATS lifecycle publisher.
type EventBusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// PresenceConfig toggles the Redis presence mirror.
type PresenceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// ResilienceConfig configures the per-action circuit breakers.
type ResilienceConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}
