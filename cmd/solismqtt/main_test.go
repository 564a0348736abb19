package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/CataIana/solismqtt/internal/config"
)

func TestRootCommand_Wiring(t *testing.T) {
	want := map[string]bool{
		"probe":     false,
		"device":    false,
		"discovery": false,
		"config":    false,
		"dashboard": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}

	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && f.DefValue != "configuration.yaml" {
		t.Errorf("expected default config path configuration.yaml, got %s", f.DefValue)
	}
}

func TestConfigCommand_Wiring(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range configCmd.Commands() {
		names[cmd.Name()] = true
	}
	if !names["init"] || !names["validate"] {
		t.Errorf("config subcommands missing: %v", names)
	}
}

func TestBuildLogger(t *testing.T) {
	defer func() { verbose = false; logFormat = "console" }()

	for _, format := range []string{"console", "json"} {
		logFormat = format
		l, err := buildLogger()
		if err != nil {
			t.Fatalf("buildLogger(%s) failed: %v", format, err)
		}
		_ = l.Sync()
	}

	verbose = true
	l, err := buildLogger()
	if err != nil {
		t.Fatalf("buildLogger verbose failed: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose logger should enable debug")
	}
}

func TestLoadConfig_Validates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.yaml")

	// Missing required fields must be rejected, not silently defaulted.
	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	old := cfgPath
	cfgPath = path
	defer func() { cfgPath = old }()

	if _, err := loadConfig(); err == nil {
		t.Error("expected validation error for config without inverter/broker")
	}

	cfg.Inverter.IP = "192.168.1.50"
	cfg.MQTT.Broker = "mqtt.local"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestHistoryRecorder_NilStaysNil(t *testing.T) {
	if historyRecorder(nil) != nil {
		t.Error("nil history must map to a nil Recorder, not a typed nil")
	}
}
