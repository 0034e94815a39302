// Package config loads the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/medistock/syncengine/logging"
	"github.com/medistock/syncengine/retry"
)

// Remote holds backend connection settings. An empty Remote means the
// installation runs purely offline; the processor refuses to start runs
// until both fields are set.
type Remote struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	RealtimeURL string `yaml:"realtime_url"`
}

// Configured reports whether the remote backend can be reached at all.
func (r Remote) Configured() bool {
	return strings.TrimSpace(r.BaseURL) != "" && strings.TrimSpace(r.APIKey) != ""
}

// Duration decodes YAML strings like "30s" or "1m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	// Bare numbers are taken as seconds.
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Retry mirrors retry.Config in YAML-friendly form.
type Retry struct {
	BatchSize    int      `yaml:"batch_size"`
	MaxRetries   int      `yaml:"max_retries"`
	BaseDelay    Duration `yaml:"base_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	SyncInterval Duration `yaml:"sync_interval"`
}

// Config is the full engine configuration.
type Config struct {
	Remote       Remote         `yaml:"remote"`
	Retry        Retry          `yaml:"retry"`
	SiteID       string         `yaml:"site_id"`
	ClientIDFile string         `yaml:"client_id_file"`
	QueuePath    string         `yaml:"queue_path"`
	Logging      logging.Config `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	rc := retry.DefaultConfig
	return Config{
		Retry: Retry{
			BatchSize:    rc.BatchSize,
			MaxRetries:   rc.MaxRetries,
			BaseDelay:    Duration(rc.BaseDelay),
			MaxDelay:     Duration(rc.MaxDelay),
			SyncInterval: Duration(rc.SyncInterval),
		},
		ClientIDFile: "client_id",
		QueuePath:    "sync.db",
		Logging:      logging.DefaultConfig,
	}
}

// Load reads a YAML config file over the defaults. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants the engine relies on.
func (c Config) Validate() error {
	if c.Retry.BatchSize <= 0 {
		return fmt.Errorf("retry.batch_size must be positive, got %d", c.Retry.BatchSize)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Retry.SyncInterval <= 0 {
		return fmt.Errorf("retry.sync_interval must be positive, got %v", c.Retry.SyncInterval)
	}
	if c.QueuePath == "" {
		return fmt.Errorf("queue_path must not be empty")
	}
	return nil
}

// RetryConfig converts the YAML section into the retry policy.
func (c Config) RetryConfig() retry.Config {
	return retry.Config{
		BatchSize:    c.Retry.BatchSize,
		MaxRetries:   c.Retry.MaxRetries,
		BaseDelay:    c.Retry.BaseDelay.Std(),
		MaxDelay:     c.Retry.MaxDelay.Std(),
		SyncInterval: c.Retry.SyncInterval.Std(),
	}
}
