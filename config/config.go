// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = "config/.env"

// NewConfig loads configuration from environment using viper with typed
// defaults and validation. A config/.env file, when present, seeds any
// variables not already set in the process environment.
func NewConfig() (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v.SetEnvPrefix("PRDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7380)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("poll.interval", 5*time.Minute)
	v.SetDefault("poll.status_concurrency", 5)
	v.SetDefault("poll.state_dsn", "file://prdeck-state.json")
	v.SetDefault("poll.sources_file", "")

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("slack.base_url", "https://slack.com/api")
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"server.host",
		"server.port",
		"server.shutdown_timeout",
		"poll.interval",
		"poll.status_concurrency",
		"poll.state_dsn",
		"poll.sources_file",
		"github.token",
		"github.base_url",
		"slack.token",
		"slack.base_url",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
