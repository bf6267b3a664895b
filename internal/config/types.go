package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon's whole configuration surface. Durations are Go
// duration strings (e.g. "30s", "1m"). Credentials and endpoints can be
// overridden from the environment; see ApplyEnv.
type Config struct {
	// Timezone is the IANA location schedule trigger times are written
	// in. Empty means UTC: schedules entered in local time against a UTC
	// evaluator silently shift, so deployments should always set this.
	Timezone string `json:"timezone,omitempty"`

	// PollInterval is the evaluation tick period. Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`

	// MinRefireFloor is the fixed minimum spacing between two fires of
	// one schedule, absorbing duplicate evaluation. Default "30s".
	MinRefireFloor string `json:"min_refire_floor,omitempty"`

	Store       StoreConfig       `json:"store"`
	MQTT        MQTTConfig        `json:"mqtt"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Logging     LoggingConfig     `json:"logging,omitempty"`
	Metrics     MetricsConfig     `json:"metrics,omitempty"`
	Pprof       PprofConfig       `json:"pprof,omitempty"`
}

type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type MQTTConfig struct {
	BrokerURL   string `json:"broker_url"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`

	PublishTimeout  string `json:"publish_timeout,omitempty"`
	ConnectRetryMax string `json:"connect_retry_max,omitempty"`

	// InsecureSkipVerify disables TLS verification. Development only.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

type MaintenanceConfig struct {
	// OfflineSweep is a cron spec (or @every form) for the stale-device
	// sweep. Empty disables the sweep.
	OfflineSweep string `json:"offline_sweep,omitempty"`
	// OfflineAfter is how long a device may stay silent before it is
	// flagged offline. Default "10m".
	OfflineAfter string `json:"offline_after,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // default true
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Listen  string `json:"listen,omitempty"` // default ":9815"
}

type PprofConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	// Token is required for non-loopback binds.
	Token string `json:"token,omitempty"`
}

// ConsoleEnabled resolves the tri-state console flag.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// Location resolves the configured timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Validate rejects configs the daemon could not start (or keep running)
// with. It is also the hot-reload gate: a bad edit is logged and ignored.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseDurationField("poll_interval", c.PollInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("min_refire_floor", c.MinRefireFloor); err != nil {
		return err
	}
	if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("mqtt.publish_timeout", c.MQTT.PublishTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("mqtt.connect_retry_max", c.MQTT.ConnectRetryMax); err != nil {
		return err
	}
	if _, err := ParseDurationField("maintenance.offline_after", c.Maintenance.OfflineAfter); err != nil {
		return err
	}

	switch d := strings.ToLower(strings.TrimSpace(c.Store.Driver)); d {
	case "", "sqlite", "sqlite3", "memory", "mem":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if strings.TrimSpace(c.MQTT.BrokerURL) == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	return nil
}
