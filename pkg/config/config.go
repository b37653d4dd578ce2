package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Cache    CacheConfig    `yaml:"cache"`
	Device   DeviceConfig   `yaml:"device"`
	State    StateConfig    `yaml:"state"`
	Settings SettingsConfig `yaml:"settings"`
	NATS     NATSConfig     `yaml:"nats"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type DeviceConfig struct {
	Type       string `yaml:"type"`
	CalendarID string `yaml:"calendar_id"`
	Path       string `yaml:"path"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

type SettingsConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	minCacheTTL = 5 * time.Minute
	maxCacheTTL = 15 * time.Minute
)

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base URL is required")
	}
	if c.Remote.Token == "" {
		return fmt.Errorf("remote API token is required")
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 15 * time.Second
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}
	if c.Cache.TTL < minCacheTTL || c.Cache.TTL > maxCacheTTL {
		return fmt.Errorf("cache TTL must be between %v and %v, got %v", minCacheTTL, maxCacheTTL, c.Cache.TTL)
	}

	if c.Device.Type == "" {
		c.Device.Type = "ics"
	}
	if c.Device.Type == "ics" && c.Device.Path == "" {
		return fmt.Errorf("device: path is required for the ics calendar")
	}

	if c.State.Path == "" {
		c.State.Path = "assignsync.db"
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "sync-settings.yaml"
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		c.NATS.Subject = "assignments.sync.results"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
