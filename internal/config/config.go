// Package config provides configuration management for Adsum.
//
// Settings come from a YAML file; anything missing falls back to the
// defaults the deployment has always run with. Config file locations
// (priority order):
//  1. $ADSUM_CONFIG
//  2. ./adsum.yaml
//  3. ~/.config/adsum/config.yaml
//  4. /etc/adsum/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default deployment values. Debounce defaults to twelve scan
// intervals: one flaky ARP reply must never flap a session.
const (
	DefaultListen          = ":3000"
	DefaultDatabasePath    = "./adsum.db"
	DefaultProbe           = "nmap"
	DefaultForceLogoutHour = 22
	defaultDebounceCycles  = 12
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Scan.Probe == "" {
		c.Scan.Probe = DefaultProbe
	}
	if c.Scan.Interval == 0 {
		c.Scan.Interval = Duration(5 * time.Minute)
	}
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = Duration(2 * time.Minute)
	}
	if c.Scan.Debounce == 0 {
		c.Scan.Debounce = c.Scan.Interval * defaultDebounceCycles
	}
	if c.Scan.ForceLogoutHour == nil {
		hour := DefaultForceLogoutHour
		c.Scan.ForceLogoutHour = &hour
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 20
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
}

// validate rejects settings that cannot mean anything.
func (c *Config) validate() error {
	switch c.Scan.Probe {
	case "", "nmap", "arp", "ssh":
	default:
		return fmt.Errorf("unknown scan probe %q (want nmap, arp or ssh)", c.Scan.Probe)
	}
	if h := c.Scan.ForceLogoutHour; h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("force_logout_hour %d out of range 0-23", *h)
	}
	if len(c.Scan.ActiveHours) != 0 && len(c.Scan.ActiveHours) != 2 {
		return fmt.Errorf("active_hours wants [start, end], got %d values", len(c.Scan.ActiveHours))
	}
	for _, h := range c.Scan.ActiveHours {
		if h < 0 || h > 24 {
			return fmt.Errorf("active_hours value %d out of range 0-24", h)
		}
	}
	if c.Scan.Probe == "ssh" && c.SSH.Host == "" {
		return fmt.Errorf("ssh probe requires ssh.host")
	}
	return nil
}

// ActiveHoursWindow returns the scan window as a pointer pair, or nil
// when scanning is unrestricted.
func (c *Config) ActiveHoursWindow() *[2]int {
	if len(c.Scan.ActiveHours) != 2 {
		return nil
	}
	return &[2]int{c.Scan.ActiveHours[0], c.Scan.ActiveHours[1]}
}
