package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CataIana/solismqtt/internal/homeassistant"
	"github.com/CataIana/solismqtt/internal/inverter"
	"github.com/CataIana/solismqtt/internal/mqtt"
)

var discoveryPublish bool

// discoveryCmd prints (or publishes) the Home Assistant discovery
// documents without starting the daemon.
var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Print or publish the Home Assistant discovery configs",
	Long: `Reads the inverter once, builds the MQTT discovery documents for every
enabled sensor and prints them with their topics.

With --publish the documents are published retained to the broker and
the command exits, which lets Home Assistant pick the inverter up
before the daemon's first full cycle.`,
	RunE: runDiscovery,
}

func init() {
	discoveryCmd.Flags().BoolVar(&discoveryPublish, "publish", false, "Publish the configs to the broker")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	client := inverter.New(cfg.Inverter.IP, cfg.Inverter.Username, cfg.Inverter.Password, cfg.HTTPTimeout(), logger)
	st, err := client.ReadState(ctx)
	if err != nil {
		return fmt.Errorf("inverter not reachable (is it dark outside?): %w", err)
	}

	builder := homeassistant.NewBuilder(cfg.Discovery.Prefix, cfg.Discovery.StatePrefix, cfg.Discovery.Models)
	enabled := cfg.EnabledSensors()

	type doc struct {
		topic   string
		payload []byte
	}
	var docs []doc
	for _, s := range homeassistant.Sensors() {
		if !enabled[s.Key] {
			continue
		}
		if _, ok := homeassistant.Value(st, s.Key); !ok {
			logger.Warn("Sensor has no reading; skipping", zap.String("sensor", s.Key))
			continue
		}
		payload, err := builder.DiscoveryConfig(st, s)
		if err != nil {
			return err
		}
		docs = append(docs, doc{topic: builder.ConfigTopic(st.SerialNumber, s.Key), payload: payload})
	}

	if !discoveryPublish {
		for _, d := range docs {
			fmt.Printf("%s\n%s\n\n", d.topic, d.payload)
		}
		return nil
	}

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

	for _, d := range docs {
		if err := mq.Publish(ctx, d.topic, d.payload, cfg.Discovery.Retain); err != nil {
			return err
		}
		fmt.Printf("published %s\n", d.topic)
	}
	return nil
}
