package config

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestSeed_FlagAndEnvPrecedence(t *testing.T) {
	t.Setenv("SOLISMQTT_MQTT_BROKER", "env-broker")

	cmd := &cobra.Command{Use: "init"}
	cmd.Flags().String("inverter.ip", "", "")
	cmd.Flags().String("mqtt.broker", "", "")
	cmd.Flags().Int("mqtt.port", 1883, "")
	if err := cmd.Flags().Set("inverter.ip", "10.0.0.9"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Seed(cmd)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if cfg.Inverter.IP != "10.0.0.9" {
		t.Errorf("flag value lost: got inverter.ip=%s", cfg.Inverter.IP)
	}
	if cfg.MQTT.Broker != "env-broker" {
		t.Errorf("env value lost: got mqtt.broker=%s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("default lost: got mqtt.port=%d", cfg.MQTT.Port)
	}
	if cfg.Discovery.Prefix != "homeassistant" {
		t.Errorf("untouched defaults must survive seeding, got %s", cfg.Discovery.Prefix)
	}
}
