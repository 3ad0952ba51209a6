package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Poll    PollConfig    `mapstructure:"poll"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Server.Port == 0 {
		return errors.New("server.port is required")
	}
	if c.Poll.Interval < time.Minute {
		return fmt.Errorf("poll.interval must be at least 1m, got %s", c.Poll.Interval)
	}
	if c.Poll.StatusConcurrency < 1 {
		return errors.New("poll.status_concurrency must be positive")
	}
	if c.GitHub.Token == "" {
		return errors.New("github.token is required")
	}
	return nil
}

// ServerAddr returns host:port for HTTP server binding.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServerConfig contains HTTP server options.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PollConfig controls the background poll loop and persistence.
type PollConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	StatusConcurrency int           `mapstructure:"status_concurrency"`
	StateDSN          string        `mapstructure:"state_dsn"`
	SourcesFile       string        `mapstructure:"sources_file"`
}

// GitHubConfig describes the GitHub API connection.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// SlackConfig describes the Slack API connection used by channel sources.
// An empty token disables channel sources.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
