package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Kennel Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Push        PushConfig        `yaml:"push"`
	Reservation ReservationConfig `yaml:"reservation"`
	Climate     ClimateConfig     `yaml:"climate"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
}

// ServiceConfig identifies this service instance to the Catalog.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// CatalogConfig contains settings for the REST catalog collaborator.
type CatalogConfig struct {
	// BaseURL is the root of the catalog API (e.g., "http://catalog:8080").
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token presented on every catalog request.
	Token string `yaml:"token"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`

	// RetryMax is the number of attempts for idempotent reads.
	// Writes (book/lock/free) are never retried.
	RetryMax int `yaml:"retry_max"`

	// HeartbeatInterval is how often to announce availability, in seconds.
	HeartbeatInterval int `yaml:"heartbeat_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	BaseTopic string              `yaml:"base_topic"`
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

// DatabaseConfig contains SQLite database settings for the audit log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// PushConfig contains push notification delivery settings.
type PushConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL is the push provider endpoint (FCM legacy send endpoint).
	URL string `yaml:"url"`

	// ServerKey authenticates against the push provider.
	ServerKey string `yaml:"server_key"`

	// Timeout is the per-delivery timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// ReservationConfig contains reservation scheduler settings.
type ReservationConfig struct {
	// SnapshotPath is where the reservation collection is persisted.
	SnapshotPath string `yaml:"snapshot_path"`

	// ExpiryAfter is how long a booked-but-never-activated reservation
	// survives, in seconds.
	ExpiryAfter int `yaml:"expiry_after"`

	// RemindAfter is when the one-shot "expires soon" reminder fires,
	// in seconds after booking.
	RemindAfter int `yaml:"remind_after"`

	// SweepInterval is how often the expiry sweep runs, in seconds.
	SweepInterval int `yaml:"sweep_interval"`

	// RefreshInterval is how often the kennel mirror is re-fetched from
	// the catalog, in seconds.
	RefreshInterval int `yaml:"refresh_interval"`
}

// ClimateConfig contains environmental control loop settings.
type ClimateConfig struct {
	// WindowSize is the apparent-temperature moving average length.
	WindowSize int `yaml:"window_size"`

	// AlertCooldown suppresses repeat alerts per (kennel, type), in seconds.
	AlertCooldown int `yaml:"alert_cooldown"`

	// RefreshInterval is how often breed/dog snapshots are re-fetched from
	// the catalog, in seconds.
	RefreshInterval int `yaml:"refresh_interval"`

	// Defaults are the comfort thresholds used when a dog's breed is unknown.
	Defaults ComfortDefaults `yaml:"defaults"`
}

// ComfortDefaults are the fallback comfort thresholds.
type ComfortDefaults struct {
	MinTemperature float64 `yaml:"min_temperature"`
	MaxTemperature float64 `yaml:"max_temperature"`
	MinHumidity    float64 `yaml:"min_humidity"`
	MaxHumidity    float64 `yaml:"max_humidity"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	// JWTSecret verifies HS256 bearer tokens issued by the catalog.
	JWTSecret string `yaml:"jwt_secret"`

	// ServiceTokens are opaque tokens accepted without JWT verification,
	// one per trusted internal service (mirrors the catalog's allow-list).
	ServiceTokens []string `yaml:"service_tokens"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KENNELCORE_SECTION_KEY
// For example: KENNELCORE_CATALOG_TOKEN, KENNELCORE_MQTT_PASSWORD
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
		Service: ServiceConfig{
			ID:   "kennel-core",
			Name: "Kennel Core",
		},
		Catalog: CatalogConfig{
			BaseURL:           "http://localhost:8080",
			Timeout:           10,
			RetryMax:          3,
			HeartbeatInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "kennel-core",
			},
			QoS:       1,
			BaseTopic: "iotail",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8083,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/kennelcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Push: PushConfig{
			URL:     "https://fcm.googleapis.com/fcm/send",
			Timeout: 5,
		},
		Reservation: ReservationConfig{
			SnapshotPath:    "./data/reservations.json",
			ExpiryAfter:     1800,
			RemindAfter:     1500,
			SweepInterval:   1,
			RefreshInterval: 60,
		},
		Climate: ClimateConfig{
			WindowSize:      30,
			AlertCooldown:   300,
			RefreshInterval: 60,
			Defaults: ComfortDefaults{
				MinTemperature: 15,
				MaxTemperature: 30,
				MinHumidity:    20,
				MaxHumidity:    80,
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
// Environment variables follow the pattern: KENNELCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KENNELCORE_CATALOG_URL"); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := os.Getenv("KENNELCORE_CATALOG_TOKEN"); v != "" {
		cfg.Catalog.Token = v
	}
	if v := os.Getenv("KENNELCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KENNELCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("KENNELCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KENNELCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("KENNELCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("KENNELCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("KENNELCORE_PUSH_SERVER_KEY"); v != "" {
		cfg.Push.ServerKey = v
	}
	if v := os.Getenv("KENNELCORE_JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		return fmt.Errorf("catalog.base_url must start with http:// or https://")
	}
	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		return fmt.Errorf("mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BaseTopic == "" {
		return fmt.Errorf("mqtt.base_topic is required")
	}
	if strings.ContainsAny(c.MQTT.BaseTopic, "+#") {
		return fmt.Errorf("mqtt.base_topic must not contain wildcards")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	if c.Reservation.SnapshotPath == "" {
		return fmt.Errorf("reservation.snapshot_path is required")
	}
	if c.Reservation.ExpiryAfter <= 0 {
		return fmt.Errorf("reservation.expiry_after must be positive")
	}
	if c.Reservation.RemindAfter <= 0 || c.Reservation.RemindAfter >= c.Reservation.ExpiryAfter {
		return fmt.Errorf("reservation.remind_after must be positive and before expiry_after")
	}
	if c.Reservation.SweepInterval <= 0 {
		return fmt.Errorf("reservation.sweep_interval must be positive")
	}
	if c.Climate.WindowSize <= 0 {
		return fmt.Errorf("climate.window_size must be positive")
	}
	if c.Climate.AlertCooldown < 0 {
		return fmt.Errorf("climate.alert_cooldown must not be negative")
	}
	if d := c.Climate.Defaults; d.MinTemperature >= d.MaxTemperature {
		return fmt.Errorf("climate.defaults: min_temperature must be below max_temperature")
	}
	if d := c.Climate.Defaults; d.MinHumidity >= d.MaxHumidity {
		return fmt.Errorf("climate.defaults: min_humidity must be below max_humidity")
	}
	return nil
}
