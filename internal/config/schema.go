package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Roster   RosterConfig   `yaml:"roster"`
	SSH      SSHConfig      `yaml:"ssh"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ScanConfig drives the presence tracker.
type ScanConfig struct {
	// Probe selects the scan implementation: nmap (default), arp, ssh.
	Probe string `yaml:"probe"`
	// Subnets are the CIDR ranges to watch. Empty means auto-detect
	// from the host's interfaces.
	Subnets []string `yaml:"subnets"`
	// Interval between scan cycles.
	Interval Duration `yaml:"interval"`
	// Timeout bounds one probe invocation.
	Timeout Duration `yaml:"timeout"`
	// Debounce is how long a device may stay unobserved before its
	// user is logged out. Zero derives twelve intervals.
	Debounce Duration `yaml:"debounce"`
	// ForceLogoutHour is the local hour of the daily sweep closing
	// every open session. Pointer so 0 (midnight) stays distinct from
	// unset.
	ForceLogoutHour *int `yaml:"force_logout_hour,omitempty"`
	// ActiveHours optionally restricts scanning to [start, end) local
	// hours, e.g. [8, 23]. Empty means always scan.
	ActiveHours []int `yaml:"active_hours,omitempty"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// RosterConfig optionally points at a YAML roster imported at startup.
type RosterConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SSHConfig configures the ssh probe's gateway connection.
type SSHConfig struct {
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	User    string `yaml:"user,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// LoggingConfig configures the optional rotated log file. Logs always
// go to stderr; a configured file is written in addition.
type LoggingConfig struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling ("5m", "2h30m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
