package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CataIana/solismqtt/internal/config"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

// configInitCmd writes an initial configuration file seeded from flags
// and SOLISMQTT_* environment variables.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an initial configuration file",
	Long: `Writes a configuration file seeded from defaults, flags and
SOLISMQTT_* environment variables.

Example:
  solismqtt config init --inverter.ip 192.168.1.50 --mqtt.broker mqtt.local`,
	RunE: runConfigInit,
}

// configValidateCmd checks an existing configuration file.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configInitCmd.Flags().String("inverter.ip", "", "Inverter IP address")
	configInitCmd.Flags().String("inverter.username", "admin", "Inverter HTTP username")
	configInitCmd.Flags().String("inverter.password", "", "Inverter HTTP password")
	configInitCmd.Flags().String("mqtt.broker", "", "MQTT broker host")
	configInitCmd.Flags().Int("mqtt.port", 1883, "MQTT broker port")
	configInitCmd.Flags().String("mqtt.username", "", "MQTT username")
	configInitCmd.Flags().String("mqtt.password", "", "MQTT password")
	configInitCmd.Flags().Int("global.interval_seconds", 60, "Poll interval in seconds")
	configInitCmd.Flags().String("global.uptime_uri", "", "Uptime ping URI")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	cfg, err := config.Seed(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Save(cfgPath); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", cfgPath)
	if cfg.Inverter.IP == "" || cfg.MQTT.Broker == "" {
		fmt.Println("Note: inverter.ip and mqtt.broker are still required before the daemon can start.")
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("%s is valid\n", cfgPath)
	fmt.Printf("  inverter: %s (timeout %s)\n", cfg.Inverter.IP, cfg.HTTPTimeout())
	fmt.Printf("  broker:   %s:%d (qos %d)\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.QoS)
	fmt.Printf("  interval: %s\n", cfg.PollInterval())
	if cfg.History.Enabled {
		fmt.Printf("  history:  %s (retention %d days)\n", cfg.History.Path, cfg.History.RetentionDays)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics:  %s\n", cfg.Metrics.Listen)
	}
	return nil
}
