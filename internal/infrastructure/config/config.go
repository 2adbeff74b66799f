package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FermentWatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Hub      HubConfig      `yaml:"hub"`
	Control  ControlConfig  `yaml:"control"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HubConfig contains automation hub connection settings.
type HubConfig struct {
	// URL is the hub base URL, e.g. "http://homeassistant.local:8123".
	URL string `yaml:"url"`

	// Token is the long-lived bearer token. Empty means no Authorization header.
	Token string `yaml:"token"`

	// TimeoutMS bounds every hub and direct-device call.
	TimeoutMS int `yaml:"timeout_ms"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the fail-fast behaviour during hub outages.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive transport failures that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// OpenSeconds is how long the breaker stays open before probing again.
	OpenSeconds int `yaml:"open_seconds"`
}

// ControlConfig contains control loop settings.
type ControlConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`

	// ConnectTimeout bounds start-up connection retries, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

const (
	defaultPollIntervalMS = 30000
	minPollIntervalMS     = 1000
	defaultHubTimeoutMS   = 5000
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file is skipped
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FERMENTWATCH_SECTION_KEY
// For example: FERMENTWATCH_HUB_URL, FERMENTWATCH_POLL_INTERVAL_MS
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only deployments are allowed.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/fermentwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Hub: HubConfig{
			TimeoutMS: defaultHubTimeoutMS,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenSeconds: 30,
			},
		},
		Control: ControlConfig{
			PollIntervalMS: defaultPollIntervalMS,
		},
		InfluxDB: InfluxDBConfig{
			URL:            "http://localhost:8086",
			Org:            "fermentwatch",
			Bucket:         "fermentation",
			ConnectTimeout: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fermentwatch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}

	// Hub
	setString("FERMENTWATCH_HUB_URL", &cfg.Hub.URL)
	setString("FERMENTWATCH_HUB_TOKEN", &cfg.Hub.Token)
	setInt("FERMENTWATCH_HUB_TIMEOUT_MS", &cfg.Hub.TimeoutMS)

	// Control
	setInt("FERMENTWATCH_POLL_INTERVAL_MS", &cfg.Control.PollIntervalMS)

	// Database
	setString("FERMENTWATCH_DATABASE_PATH", &cfg.Database.Path)

	// InfluxDB
	setString("FERMENTWATCH_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("FERMENTWATCH_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// MQTT
	setString("FERMENTWATCH_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("FERMENTWATCH_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("FERMENTWATCH_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("FERMENTWATCH_API_HOST", &cfg.API.Host)
	setInt("FERMENTWATCH_API_PORT", &cfg.API.Port)

	// Logging
	setString("FERMENTWATCH_LOG_LEVEL", &cfg.Logging.Level)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Hub
	if c.Hub.URL == "" {
		errs = append(errs, "hub.url is required (set FERMENTWATCH_HUB_URL environment variable)")
	} else if u, err := url.Parse(c.Hub.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "hub.url must be an absolute http or https URL")
	}
	if c.Hub.Breaker.MaxFailures < 1 {
		errs = append(errs, "hub.breaker.max_failures must be at least 1")
	}
	if c.Hub.Breaker.OpenSeconds < 1 {
		errs = append(errs, "hub.breaker.open_seconds must be at least 1")
	}

	// Control
	if c.Control.PollIntervalMS < minPollIntervalMS {
		errs = append(errs, fmt.Sprintf("control.poll_interval_ms must be at least %d", minPollIntervalMS))
	}
	if c.Hub.TimeoutMS <= 0 {
		errs = append(errs, "hub.timeout_ms must be positive")
	} else if c.Hub.TimeoutMS > c.Control.PollIntervalMS/3 {
		errs = append(errs, "hub.timeout_ms must not exceed a third of control.poll_interval_ms")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the control loop interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Control.PollIntervalMS) * time.Millisecond
}

// HubTimeout returns the per-call hub timeout as a Duration.
func (c *Config) HubTimeout() time.Duration {
	return time.Duration(c.Hub.TimeoutMS) * time.Millisecond
}

// BreakerOpenFor returns how long the hub breaker stays open.
func (c *Config) BreakerOpenFor() time.Duration {
	return time.Duration(c.Hub.Breaker.OpenSeconds) * time.Second
}

// InfluxConnectTimeout returns the start-up connect budget for InfluxDB.
func (c *Config) InfluxConnectTimeout() time.Duration {
	return time.Duration(c.InfluxDB.ConnectTimeout) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
