package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/navillusj/ASX-Share-Monitor/internal/model"
	"github.com/navillusj/ASX-Share-Monitor/internal/timezone"
)

// Duration unmarshals YAML scalars like "30s" through time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Source struct {
		Provider string   `yaml:"provider"` // yahoo | mock
		BaseURL  string   `yaml:"base_url"`
		Timeout  Duration `yaml:"timeout"`
		Retries  int      `yaml:"retries"`
	} `yaml:"source"`
	Refresh struct {
		Interval         Duration `yaml:"interval"`
		Concurrency      int      `yaml:"concurrency"`
		FailureThreshold int      `yaml:"failure_threshold"`
	} `yaml:"refresh"`
	Display struct {
		TimeRange string `yaml:"time_range"`
		Timezone  string `yaml:"timezone"`
	} `yaml:"display"`
	Paths struct {
		Settings string `yaml:"settings"`
		Database string `yaml:"database"` // empty disables the sqlite recorder
	} `yaml:"paths"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file (missing file is fine), then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ASXMON_SOURCE_PROVIDER"); v != "" {
		cfg.Source.Provider = v
	}
	if v := os.Getenv("ASXMON_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("ASXMON_REFRESH_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Interval = Duration(parsed)
		}
	}
	if v := os.Getenv("ASXMON_TIME_RANGE"); v != "" {
		cfg.Display.TimeRange = v
	}
	if v := os.Getenv("ASXMON_TIMEZONE"); v != "" {
		cfg.Display.Timezone = v
	}
	if v := os.Getenv("ASXMON_SETTINGS_PATH"); v != "" {
		cfg.Paths.Settings = v
	}
	if v := os.Getenv("ASXMON_DB_PATH"); v != "" {
		cfg.Paths.Database = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = "yahoo"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = Duration(15 * time.Second)
	}
	if cfg.Source.Retries == 0 {
		cfg.Source.Retries = 2
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = Duration(30 * time.Second)
	}
	if cfg.Refresh.Concurrency == 0 {
		cfg.Refresh.Concurrency = 5
	}
	if cfg.Refresh.FailureThreshold == 0 {
		cfg.Refresh.FailureThreshold = 3
	}
	if cfg.Display.TimeRange == "" {
		cfg.Display.TimeRange = model.DefaultTimeRange
	}
	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = timezone.DefaultZone
	}
	if cfg.Paths.Settings == "" {
		cfg.Paths.Settings = "settings.json"
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Source.Provider {
	case "yahoo", "mock":
	default:
		return fmt.Errorf("source.provider must be yahoo or mock, got %q", c.Source.Provider)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}
	if c.Source.Retries < 0 {
		return fmt.Errorf("source.retries must not be negative")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive")
	}
	if c.Refresh.Concurrency <= 0 {
		return fmt.Errorf("refresh.concurrency must be positive")
	}
	if c.Refresh.FailureThreshold <= 0 {
		return fmt.Errorf("refresh.failure_threshold must be positive")
	}
	if _, ok := model.RangeByName(c.Display.TimeRange); !ok {
		return fmt.Errorf("display.time_range %q is not a known range", c.Display.TimeRange)
	}
	if _, err := timezone.New(c.Display.Timezone); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	if c.Paths.Settings == "" {
		return fmt.Errorf("paths.settings is required")
	}
	return nil
}
