package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all solismqtt configuration.
type Config struct {
	// Polling and uptime reporting
	Global GlobalConfig `yaml:"global"`

	// Inverter WiFi stick endpoint
	Inverter InverterConfig `yaml:"inverter"`

	// MQTT broker connection
	MQTT MQTTConfig `yaml:"mqtt"`

	// Home Assistant discovery
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Per-sensor enable flags
	Sensors SensorsConfig `yaml:"sensors"`

	// Reading history (SQLite)
	History HistoryConfig `yaml:"history"`

	// Prometheus metrics + health endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GlobalConfig configures the poll loop.
type GlobalConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	UptimeURI       string `yaml:"uptime_uri"`
}

// InverterConfig configures the inverter HTTP client.
type InverterConfig struct {
	IP             string `yaml:"ip"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MQTTConfig configures the MQTT broker connection.
type MQTTConfig struct {
	Broker                string `yaml:"broker"`
	Port                  int    `yaml:"port"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	ClientID              string `yaml:"client_id"`
	QoS                   int    `yaml:"qos"`
	PublishTimeoutSeconds int    `yaml:"publish_timeout_seconds"`
}

// DiscoveryConfig configures Home Assistant MQTT discovery.
type DiscoveryConfig struct {
	Prefix      string            `yaml:"prefix"`
	StatePrefix string            `yaml:"state_prefix"`
	Retain      bool              `yaml:"retain"`
	Models      map[string]string `yaml:"models"`
}

// SensorsConfig enables or disables individual sensors.
// All sensors are published by default.
type SensorsConfig struct {
	PowerCurrent        bool `yaml:"power_current"`
	PowerToday          bool `yaml:"power_today"`
	PowerTotal          bool `yaml:"power_total"`
	InverterTemperature bool `yaml:"inverter_temperature"`
}

// HistoryConfig configures the SQLite reading history.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the default configuration.
// Inverter IP and MQTT broker have no defaults and must be provided.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			IntervalSeconds: 60,
		},
		Inverter: InverterConfig{
			Username:       "admin",
			TimeoutSeconds: 20,
		},
		MQTT: MQTTConfig{
			Port:                  1883,
			QoS:                   0,
			PublishTimeoutSeconds: 30,
		},
		Discovery: DiscoveryConfig{
			Prefix:      "homeassistant",
			StatePrefix: "solismqtt",
			Retain:      true,
		},
		Sensors: SensorsConfig{
			PowerCurrent:        true,
			PowerToday:          true,
			PowerTotal:          true,
			InverterTemperature: true,
		},
		History: HistoryConfig{
			Enabled:       false,
			Path:          "/data/history.db",
			RetentionDays: 90,
			PruneSchedule: "0 3 * * *",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9127",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is an error: the daemon cannot run without a broker
// address and an inverter address.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Secrets belong in the environment, not on disk, when running in a container.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOLISMQTT_INVERTER_IP"); v != "" {
		c.Inverter.IP = v
	}
	if v := os.Getenv("SOLISMQTT_INVERTER_PASSWORD"); v != "" {
		c.Inverter.Password = v
	}
	if v := os.Getenv("SOLISMQTT_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("SOLISMQTT_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("SOLISMQTT_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("SOLISMQTT_UPTIME_URI"); v != "" {
		c.Global.UptimeURI = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Inverter.IP == "" {
		return fmt.Errorf("inverter.ip not configured (set it in the config file or SOLISMQTT_INVERTER_IP)")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker not configured (set it in the config file or SOLISMQTT_MQTT_BROKER)")
	}
	if c.Global.IntervalSeconds < 1 {
		return fmt.Errorf("global.interval_seconds must be at least 1, got %d", c.Global.IntervalSeconds)
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.History.Enabled && c.History.RetentionDays < 1 {
		return fmt.Errorf("history.retention_days must be at least 1, got %d", c.History.RetentionDays)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s (valid: console, json)", c.Logging.Format)
	}

	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	if c.Global.IntervalSeconds < 1 {
		return 60 * time.Second
	}
	return time.Duration(c.Global.IntervalSeconds) * time.Second
}

// HTTPTimeout returns the inverter request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	if c.Inverter.TimeoutSeconds < 1 {
		return 20 * time.Second
	}
	return time.Duration(c.Inverter.TimeoutSeconds) * time.Second
}

// PublishTimeout returns the MQTT publish timeout as a duration.
func (c *Config) PublishTimeout() time.Duration {
	if c.MQTT.PublishTimeoutSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(c.MQTT.PublishTimeoutSeconds) * time.Second
}

// RetentionCutoff returns the history retention window as a duration.
func (c *Config) RetentionCutoff() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// MQTTClientID returns the configured client id, or generates the
// default solismqtt_<uuid> form.
func (c *Config) MQTTClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return "solismqtt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// EnabledSensors returns the set of sensor keys enabled in the config.
func (c *Config) EnabledSensors() map[string]bool {
	return map[string]bool{
		"power_current":        c.Sensors.PowerCurrent,
		"power_today":          c.Sensors.PowerToday,
		"power_total":          c.Sensors.PowerTotal,
		"inverter_temperature": c.Sensors.InverterTemperature,
	}
}
