package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/lineflow/errors"
)

// Known enterprise decoder ids.
const (
	EnterpriseGlass    = "glass"
	EnterpriseBeverage = "beverage"
	EnterpriseBiotech  = "biotech"
)

// Sink drivers.
const (
	SinkSQLite = "sqlite"
	SinkMemory = "memory"
)

// Config represents the complete pipeline configuration.
type Config struct {
	NATS        NATSConfig                  `yaml:"nats"`
	Ingest      IngestConfig                `yaml:"ingest"`
	Enterprises map[string]EnterpriseConfig `yaml:"enterprises"`
	Window      WindowConfig                `yaml:"window"`
	Lifecycle   LifecycleConfig             `yaml:"lifecycle"`
	Sink        SinkConfig                  `yaml:"sink"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Logging     LoggingConfig               `yaml:"logging"`
}

// NATSConfig holds connection settings for the inbound NATS transport.
type NATSConfig struct {
	URLs          []string      `yaml:"urls"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait Duration      `yaml:"reconnect_wait"`
	DrainTimeout  Duration      `yaml:"drain_timeout"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Token         string        `yaml:"token,omitempty"`
	TLS           NATSTLSConfig `yaml:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections.
type NATSTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// IngestConfig holds the inbound subject subscriptions and queue sizing.
type IngestConfig struct {
	// Subjects are the NATS subjects carrying broker envelopes.
	Subjects []string `yaml:"subjects"`
	// QueueSize bounds the dispatcher's inbound channel; a full queue
	// drops rather than blocking the NATS callback.
	QueueSize int `yaml:"queue_size"`
}

// EnterpriseConfig enables one enterprise decoder and sets its topic
// prefix handling.
type EnterpriseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix,omitempty"`
	// IgnorePrefixes are vendor sub-feeds to skip, relative to Prefix.
	IgnorePrefixes []string `yaml:"ignore_prefixes,omitempty"`
}

// WindowConfig sets aggregation window geometry.
type WindowConfig struct {
	Size  Duration `yaml:"size"`
	Grace Duration `yaml:"grace"`
}

// LifecycleConfig sets completion-status classification thresholds as
// fractions of target quantity.
type LifecycleConfig struct {
	CompleteThreshold   float64 `yaml:"complete_threshold"`
	InProgressThreshold float64 `yaml:"in_progress_threshold"`
}

// SinkConfig selects and tunes the outbound fact store.
type SinkConfig struct {
	Driver        string      `yaml:"driver"`
	Path          string      `yaml:"path,omitempty"`
	BatchSize     int         `yaml:"batch_size"`
	FlushInterval Duration    `yaml:"flush_interval"`
	Retry         RetryConfig `yaml:"retry"`
}

// RetryConfig tunes sink write retries.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// MetricsConfig controls the prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when a field is absent from the
// loaded document.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			DrainTimeout:  Duration(10 * time.Second),
		},
		Ingest: IngestConfig{
			Subjects:  []string{"telemetry.>"},
			QueueSize: 4096,
		},
		Enterprises: map[string]EnterpriseConfig{
			EnterpriseGlass:    {Enabled: true, Prefix: "Enterprise A/"},
			EnterpriseBeverage: {Enabled: true, Prefix: "Enterprise B/"},
			EnterpriseBiotech:  {Enabled: true, Prefix: "Enterprise C/"},
		},
		Window: WindowConfig{
			Size:  Duration(10 * time.Second),
			Grace: Duration(5 * time.Second),
		},
		Lifecycle: LifecycleConfig{
			CompleteThreshold:   0.95,
			InProgressThreshold: 0.5,
		},
		Sink: SinkConfig{
			Driver:        SinkSQLite,
			Path:          "lineflow.db",
			BatchSize:     256,
			FlushInterval: Duration(2 * time.Second),
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: Duration(100 * time.Millisecond),
				MaxDelay:     Duration(5 * time.Second),
				Multiplier:   2.0,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "reading config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on a configuration the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.NATS.URLs) == 0 {
		return invalid("nats.urls must not be empty")
	}
	if len(c.Ingest.Subjects) == 0 {
		return invalid("ingest.subjects must not be empty")
	}
	if c.Ingest.QueueSize <= 0 {
		return invalid("ingest.queue_size must be positive")
	}

	enabled := 0
	for id, ent := range c.Enterprises {
		switch id {
		case EnterpriseGlass, EnterpriseBeverage, EnterpriseBiotech:
		default:
			return invalid(fmt.Sprintf("enterprises.%s: no decoder for this enterprise", id))
		}
		if ent.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return invalid("at least one enterprise must be enabled")
	}

	if c.Window.Size <= 0 {
		return invalid("window.size must be positive")
	}
	if c.Window.Grace < 0 {
		return invalid("window.grace must not be negative")
	}
	if c.Window.Grace >= c.Window.Size {
		return invalid("window.grace must be smaller than window.size")
	}

	lc := c.Lifecycle
	if lc.CompleteThreshold <= 0 || lc.CompleteThreshold > 1 {
		return invalid("lifecycle.complete_threshold must be in (0, 1]")
	}
	if lc.InProgressThreshold <= 0 || lc.InProgressThreshold > lc.CompleteThreshold {
		return invalid("lifecycle.in_progress_threshold must be in (0, complete_threshold]")
	}

	switch c.Sink.Driver {
	case SinkSQLite:
		if c.Sink.Path == "" {
			return invalid("sink.path is required for the sqlite driver")
		}
	case SinkMemory:
	default:
		return invalid(fmt.Sprintf("sink.driver %q is not supported", c.Sink.Driver))
	}
	if c.Sink.BatchSize <= 0 {
		return invalid("sink.batch_size must be positive")
	}
	if c.Sink.Retry.MaxAttempts <= 0 {
		return invalid("sink.retry.max_attempts must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("logging.level %q is not supported", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return invalid(fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	return nil
}

// Enabled returns the ids of the enabled enterprises.
func (c *Config) Enabled() []string {
	var out []string
	for _, id := range []string{EnterpriseGlass, EnterpriseBeverage, EnterpriseBiotech} {
		if ent, ok := c.Enterprises[id]; ok && ent.Enabled {
			out = append(out, id)
		}
	}
	return out
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", msg)
}
