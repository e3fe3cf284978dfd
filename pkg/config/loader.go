package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads ./config.yaml (or /etc/ocpp-csms/config.yaml), layers
// OCPP_CSMS_-prefixed environment variables and the explicitly bound
// OCPP_ADDRESS, LOG_LEVEL, NATS_URL and REDIS_URL over it, and unmarshals
// into a Config. Missing file is not an error: a deployment may configure entirely
// through environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/ocpp-csms")

	viper.SetEnvPrefix("OCPP_CSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("ocpp.address", "OCPP_ADDRESS")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("eventbus.url", "NATS_URL")
	viper.BindEnv("presence.url", "REDIS_URL")

	viper.SetDefault("ocpp.heartbeat_default_interval", 60)
	viper.SetDefault("resilience.max_requests", 3)
	viper.SetDefault("resilience.interval", "60s")
	viper.SetDefault("resilience.timeout", "30s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
