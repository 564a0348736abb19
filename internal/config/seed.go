package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// seedDefaults are the viper defaults used when seeding a new config file.
func seedDefaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"global.interval_seconds":  d.Global.IntervalSeconds,
		"global.uptime_uri":        d.Global.UptimeURI,
		"inverter.ip":              d.Inverter.IP,
		"inverter.username":        d.Inverter.Username,
		"inverter.password":        d.Inverter.Password,
		"inverter.timeout_seconds": d.Inverter.TimeoutSeconds,
		"mqtt.broker":              d.MQTT.Broker,
		"mqtt.port":                d.MQTT.Port,
		"mqtt.username":            d.MQTT.Username,
		"mqtt.password":            d.MQTT.Password,
		"mqtt.qos":                 d.MQTT.QoS,
		"discovery.prefix":         d.Discovery.Prefix,
		"discovery.state_prefix":   d.Discovery.StatePrefix,
		"discovery.retain":         d.Discovery.Retain,
		"history.enabled":          d.History.Enabled,
		"history.path":             d.History.Path,
		"history.retention_days":   d.History.RetentionDays,
		"metrics.enabled":          d.Metrics.Enabled,
		"metrics.listen":           d.Metrics.Listen,
		"logging.level":            d.Logging.Level,
		"logging.format":           d.Logging.Format,
	}
}

// Seed builds a Config from flags and SOLISMQTT_* environment variables.
// Used by `solismqtt config init` to write an initial configuration file;
// the daemon itself always loads from YAML via Load.
func Seed(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	for key, value := range seedDefaults() {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("solismqtt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Global.IntervalSeconds = v.GetInt("global.interval_seconds")
	cfg.Global.UptimeURI = v.GetString("global.uptime_uri")
	cfg.Inverter.IP = v.GetString("inverter.ip")
	cfg.Inverter.Username = v.GetString("inverter.username")
	cfg.Inverter.Password = v.GetString("inverter.password")
	cfg.Inverter.TimeoutSeconds = v.GetInt("inverter.timeout_seconds")
	cfg.MQTT.Broker = v.GetString("mqtt.broker")
	cfg.MQTT.Port = v.GetInt("mqtt.port")
	cfg.MQTT.Username = v.GetString("mqtt.username")
	cfg.MQTT.Password = v.GetString("mqtt.password")
	cfg.MQTT.QoS = v.GetInt("mqtt.qos")
	cfg.Discovery.Prefix = v.GetString("discovery.prefix")
	cfg.Discovery.StatePrefix = v.GetString("discovery.state_prefix")
	cfg.Discovery.Retain = v.GetBool("discovery.retain")
	cfg.History.Enabled = v.GetBool("history.enabled")
	cfg.History.Path = v.GetString("history.path")
	cfg.History.RetentionDays = v.GetInt("history.retention_days")
	cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	cfg.Metrics.Listen = v.GetString("metrics.listen")
	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")

	return cfg, nil
}
