package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/CataIana/solismqtt/internal/bridge"
	"github.com/CataIana/solismqtt/internal/config"
	"github.com/CataIana/solismqtt/internal/homeassistant"
	"github.com/CataIana/solismqtt/internal/inverter"
	"github.com/CataIana/solismqtt/internal/metrics"
	"github.com/CataIana/solismqtt/internal/mqtt"
	"github.com/CataIana/solismqtt/internal/store"
)

// version is set via -ldflags at build time.
var version = "dev"

var (
	// Global flags
	cfgPath   string
	verbose   bool
	logFormat string

	// Logger
	logger *zap.Logger
)

// rootCmd runs the bridge daemon.
var rootCmd = &cobra.Command{
	Use:   "solismqtt",
	Short: "Solis inverter to Home Assistant MQTT bridge",
	Long: `solismqtt polls a Solis solar inverter's WiFi data logger over HTTP
and publishes its readings to an MQTT broker with Home Assistant
discovery, so the inverter shows up in Home Assistant automatically.

The inverter powers its WiFi stick off when the panels go dark; the
daemon waits for it to come back with exponential backoff.

Run without arguments to start the daemon.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = buildLogger()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDaemon,
}

// buildLogger builds the zap logger from the global flags.
func buildLogger() (*zap.Logger, error) {
	var zcfg zap.Config
	if logFormat == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zcfg.Build()
}

// applyLoggingConfig tightens the level per the config file unless
// --verbose asked for everything.
func applyLoggingConfig(cfg *config.Config) {
	if verbose {
		return
	}
	var lvl zapcore.Level
	if err := lvl.Set(cfg.Logging.Level); err == nil && lvl != zapcore.InfoLevel {
		rebuilt, err := buildLoggerAt(lvl, cfg.Logging.Format)
		if err == nil {
			logger = rebuilt
		}
	}
}

func buildLoggerAt(lvl zapcore.Level, format string) (*zap.Logger, error) {
	var zcfg zap.Config
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configuration.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(discoveryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dashboardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runDaemon wires everything together and runs until a signal arrives.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLoggingConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting solismqtt",
		zap.String("version", version),
		zap.String("inverter", cfg.Inverter.IP),
		zap.String("broker", cfg.MQTT.Broker))

	inv := inverter.New(cfg.Inverter.IP, cfg.Inverter.Username, cfg.Inverter.Password, cfg.HTTPTimeout(), logger)

	mq := mqtt.NewClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		Port:           cfg.MQTT.Port,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientID:       cfg.MQTTClientID(),
		QoS:            byte(cfg.MQTT.QoS),
		PublishTimeout: cfg.PublishTimeout(),
	}, logger)
	if err := mq.Connect(); err != nil {
		return err
	}
	defer mq.Close()

	var history *store.History
	var maintenance *store.Maintenance
	if cfg.History.Enabled {
		history, err = store.Open(cfg.History.Path, logger)
		if err != nil {
			return err
		}
		defer history.Close()

		maintenance, err = store.NewMaintenance(history, cfg.History.PruneSchedule, cfg.RetentionCutoff(), logger)
		if err != nil {
			return err
		}
		maintenance.Start()
		defer maintenance.Stop()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Config hot-reload: the watcher signals, we reload the file and
	// push the poll settings to the bridge.
	reloads := make(chan bridge.Settings, 1)
	watcher, err := config.NewWatcher(cfgPath, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config watcher disabled", zap.Error(err))
		watcher = nil
	} else {
		defer watcher.Stop()
	}

	b := bridge.New(bridge.Config{
		Reader:          inv,
		Publisher:       mq,
		Discovery:       homeassistant.NewBuilder(cfg.Discovery.Prefix, cfg.Discovery.StatePrefix, cfg.Discovery.Models),
		Enabled:         cfg.EnabledSensors(),
		RetainDiscovery: cfg.Discovery.Retain,
		Interval:        cfg.PollInterval(),
		UptimeURI:       cfg.Global.UptimeURI,
		History:         historyRecorder(history),
		Metrics:         m,
		Reconnects:      mq.Reconnects(),
		Reloads:         reloads,
		Logger:          logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})

	if m != nil {
		srv := metrics.NewServer(cfg.Metrics.Listen, m, mq.Connected, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if watcher != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-watcher.Events():
					next, err := config.Load(cfgPath)
					if err != nil {
						logger.Warn("Config reload failed; keeping previous settings", zap.Error(err))
						continue
					}
					if err := next.Validate(); err != nil {
						logger.Warn("Reloaded config invalid; keeping previous settings", zap.Error(err))
						continue
					}
					select {
					case reloads <- bridge.Settings{Interval: next.PollInterval(), UptimeURI: next.Global.UptimeURI}:
					case <-gctx.Done():
						return nil
					}
				}
			}
		})
	}

	err = g.Wait()
	logger.Info("solismqtt stopped")
	return err
}

// historyRecorder adapts a possibly-nil *store.History to the bridge's
// Recorder interface without handing it a typed nil.
func historyRecorder(h *store.History) bridge.Recorder {
	if h == nil {
		return nil
	}
	return h
}
