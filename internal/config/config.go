// Package config loads invoked's configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds invoked configuration.
type Config struct {
	// HTTP listener. Empty disables the HTTP transport.
	HTTPAddr   string `envconfig:"INVOKE_HTTP_ADDR" default:":8080"`
	HTTPPrefix string `envconfig:"INVOKE_HTTP_PREFIX"`

	// NATS. An empty URL disables the NATS transport.
	NATSURL     string `envconfig:"INVOKE_NATS_URL"`
	NATSName    string `envconfig:"INVOKE_NATS_NAME" default:"invoked"`
	NATSSubject string `envconfig:"INVOKE_NATS_SUBJECT" default:"invoke"`
	NATSQueue   string `envconfig:"INVOKE_NATS_QUEUE"`

	// Dispatch
	RequestTimeout  time.Duration `envconfig:"INVOKE_REQUEST_TIMEOUT" default:"30s"`
	MaxChainDepth   int           `envconfig:"INVOKE_MAX_CHAIN_DEPTH" default:"16"`
	ShutdownTimeout time.Duration `envconfig:"INVOKE_SHUTDOWN_TIMEOUT" default:"10s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" && c.NATSURL == "" {
		errs = append(errs, errors.New("config: one of INVOKE_HTTP_ADDR or INVOKE_NATS_URL is required"))
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		errs = append(errs, errors.New("config: INVOKE_NATS_SUBJECT is required with INVOKE_NATS_URL"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("config: INVOKE_REQUEST_TIMEOUT must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("config: INVOKE_SHUTDOWN_TIMEOUT must be positive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// JSONLogs reports whether logs should be written as JSON.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
}
