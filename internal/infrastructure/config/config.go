package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sanity-io/litter"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// DefaultPath is used when GRAYLOGIC_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Driver names accepted in radio.driver.
const (
	radioDriverGPIO     = "gpio"
	radioDriverLoopback = "loopback"
)

const redacted = "[REDACTED]"

// maxChannel is the highest switch channel a LightwaveRF remote addresses.
const maxChannel = 15

// Config is the root configuration structure for the LightwaveRF bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Radio    RadioConfig    `yaml:"radio"`
	Pairing  PairingConfig  `yaml:"pairing"`
	Devices  []DeviceConfig `yaml:"devices"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains MQTT bridge behaviour settings.
type BridgeConfig struct {
	// ID identifies this bridge in health and discovery payloads.
	ID string `yaml:"id"`

	// HealthInterval is how often a health message is published.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// DedupeWindow suppresses the repeats of a single button press.
	// A remote sends every frame 12 times; identical frames seen within
	// this window are published once. Zero disables de-duplication.
	// Default: 1s
	DedupeWindow time.Duration `yaml:"dedupe_window"`

	// RequirePairing drops messages from remotes not in the pairing
	// registry. Dropped remotes are announced on the discovery topic.
	RequirePairing bool `yaml:"require_pairing"`

	// CommandTimeout bounds the handling of a single MQTT command.
	// Default: 5s
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// RadioConfig selects and configures the 433 MHz radio line.
type RadioConfig struct {
	// Driver is "gpio" (Linux GPIO character device) or "loopback".
	Driver string `yaml:"driver"`

	// Chip is the GPIO chip name, e.g. "gpiochip0".
	Chip string `yaml:"chip"`

	// RXLine is the line offset wired to the receiver data pin.
	RXLine int `yaml:"rx_line"`

	// TXLine is the line offset wired to the transmitter data pin.
	// A negative value disables transmission.
	TXLine int `yaml:"tx_line"`

	// Consumer is the label shown for requested lines in gpioinfo.
	Consumer string `yaml:"consumer"`

	// Revision selects the protocol timing: "classic", "strict" or "open".
	Revision string `yaml:"revision"`
}

// PairingConfig contains pairing registry settings.
type PairingConfig struct {
	// LearnTimeout is how long a pair request waits for a remote.
	// Default: 30s
	LearnTimeout time.Duration `yaml:"learn_timeout"`
}

// DeviceConfig maps an MQTT device ID to a remote identity and channel
// the bridge transmits as.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	RemoteID string `yaml:"remote_id"`
	Channel  int    `yaml:"channel"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// MetricsInterval is how often decoder counters are written, in seconds.
	MetricsInterval int `yaml:"metrics_interval"`
}

// APIConfig contains the local HTTP API settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	Auth      APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APIAuthConfig contains API authentication settings.
type APIAuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens issued by Gray Logic Core.
	// Empty disables authentication, which is only sensible on loopback.
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Path returns the configuration file path from GRAYLOGIC_CONFIG,
// falling back to DefaultPath.
func Path() string {
	if v := os.Getenv("GRAYLOGIC_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_RADIO_CHIP
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "lwrf-bridge-01",
			HealthInterval: 30 * time.Second,
			DedupeWindow:   time.Second,
			CommandTimeout: 5 * time.Second,
		},
		Radio: RadioConfig{
			Driver:   radioDriverLoopback,
			Chip:     "gpiochip0",
			RXLine:   27,
			TXLine:   17,
			Consumer: "lwrf-bridge",
			Revision: lightwaverf.RevisionClassic.Name,
		},
		Pairing: PairingConfig{
			LearnTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/lwrf.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lwrf-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:       100,
			FlushInterval:   10,
			MetricsInterval: 60,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
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
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Radio
	if v := os.Getenv("GRAYLOGIC_RADIO_DRIVER"); v != "" {
		cfg.Radio.Driver = v
	}
	if v := os.Getenv("GRAYLOGIC_RADIO_CHIP"); v != "" {
		cfg.Radio.Chip = v
	}
	if v := os.Getenv("GRAYLOGIC_RADIO_REVISION"); v != "" {
		cfg.Radio.Revision = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval <= 0 {
		errs = append(errs, "bridge.health_interval must be positive")
	}
	if c.Bridge.DedupeWindow < 0 {
		errs = append(errs, "bridge.dedupe_window must not be negative")
	}
	if c.Bridge.CommandTimeout <= 0 {
		errs = append(errs, "bridge.command_timeout must be positive")
	}

	errs = append(errs, c.Radio.validate()...)

	if c.Pairing.LearnTimeout <= 0 {
		errs = append(errs, "pairing.learn_timeout must be positive")
	}

	errs = append(errs, validateDevices(c.Devices)...)

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.API.Enabled {
		errs = append(errs, c.API.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (r RadioConfig) validate() []string {
	var errs []string

	switch r.Driver {
	case radioDriverLoopback:
	case radioDriverGPIO:
		if r.Chip == "" {
			errs = append(errs, "radio.chip is required for the gpio driver")
		}
		if r.RXLine < 0 {
			errs = append(errs, "radio.rx_line must not be negative")
		}
		if r.TXLine == r.RXLine {
			errs = append(errs, "radio.tx_line must differ from radio.rx_line")
		}
	default:
		errs = append(errs, fmt.Sprintf("radio.driver %q must be gpio or loopback", r.Driver))
	}

	if _, err := lightwaverf.RevisionByName(r.Revision); err != nil {
		errs = append(errs, fmt.Sprintf("radio.revision %q is not a known protocol revision", r.Revision))
	}

	return errs
}

func (a APIConfig) validate() []string {
	var errs []string

	if a.Port < 1 || a.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if a.WebSocket.PingInterval <= 0 || a.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
	}
	if a.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "api.websocket.max_message_size must be positive")
	}

	return errs
}

func validateDevices(devices []DeviceConfig) []string {
	var errs []string
	seen := make(map[string]bool, len(devices))

	for i, d := range devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		} else if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true

		if _, err := lightwaverf.ParseRemoteID(d.RemoteID); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].remote_id %q must be 12 hex digits", i, d.RemoteID))
		}
		if d.Channel < 0 || d.Channel > maxChannel {
			errs = append(errs, fmt.Sprintf("devices[%d].channel must be between 0 and %d", i, maxChannel))
		}
	}

	return errs
}

// GetBusyTimeout returns the database busy timeout as a Duration.
func (c *Config) GetBusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeout) * time.Second
}

// GetMetricsInterval returns the InfluxDB metrics interval as a Duration.
func (c *Config) GetMetricsInterval() time.Duration {
	return time.Duration(c.InfluxDB.MetricsInterval) * time.Second
}

// Redacted returns a copy of the configuration with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Devices = append([]DeviceConfig(nil), c.Devices...)
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = redacted
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = redacted
	}
	if out.API.Auth.JWTSecret != "" {
		out.API.Auth.JWTSecret = redacted
	}
	return out
}

// Dump renders the redacted configuration for debug logging.
func (c *Config) Dump() string {
	return litter.Options{
		StripPackageNames: true,
		HidePrivateFields: true,
	}.Sdump(c.Redacted())
}
