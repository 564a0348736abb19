// Package homeassistant builds the MQTT discovery documents and state
// payloads that let Home Assistant pick the inverter up automatically.
//
// See https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
// for the discovery contract.
package homeassistant

import (
	"encoding/json"
	"fmt"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// defaultModels maps the numeric model codes the stick reports to the
// marketing model names. Unknown codes fall through as-is.
var defaultModels = map[string]string{
	"518": "S5-GR3P10K-LV",
}

// Builder produces discovery topics and payloads for one inverter.
type Builder struct {
	// Prefix is the discovery topic prefix, normally "homeassistant".
	Prefix string
	// StatePrefix is the state topic prefix, normally "solismqtt".
	StatePrefix string
	// Models extends the built-in model code table.
	Models map[string]string
}

// NewBuilder creates a Builder with the given prefixes. Extra model
// mappings override the built-in table.
func NewBuilder(prefix, statePrefix string, models map[string]string) *Builder {
	if prefix == "" {
		prefix = "homeassistant"
	}
	if statePrefix == "" {
		statePrefix = "solismqtt"
	}
	return &Builder{Prefix: prefix, StatePrefix: statePrefix, Models: models}
}

// ModelName resolves a model code to a model name.
func (b *Builder) ModelName(code string) string {
	if name, ok := b.Models[code]; ok {
		return name
	}
	if name, ok := defaultModels[code]; ok {
		return name
	}
	return code
}

// ConfigTopic returns the retained discovery config topic for a sensor.
func (b *Builder) ConfigTopic(serial, key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", b.Prefix, serial, key)
}

// StateTopic returns the shared state topic for an inverter.
func (b *Builder) StateTopic(serial string) string {
	return fmt.Sprintf("%s/%s", b.StatePrefix, serial)
}

// discoveryDevice is the device block shared by all of an inverter's
// sensors; Home Assistant groups entities by it.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version"`
}

// discoveryConfig is a sensor's discovery document. Field order is the
// wire order.
type discoveryConfig struct {
	Device            discoveryDevice `json:"device"`
	DeviceClass       string          `json:"device_class"`
	Name              string          `json:"name"`
	StateClass        string          `json:"state_class"`
	StateTopic        string          `json:"state_topic"`
	UniqueID          string          `json:"unique_id"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	ValueTemplate     string          `json:"value_template"`
	ExpireAfter       string          `json:"expire_after"`
	AvailabilityMode  string          `json:"availability_mode"`
}

// DiscoveryConfig builds the discovery document for one sensor.
func (b *Builder) DiscoveryConfig(st *inverter.State, s Sensor) ([]byte, error) {
	deviceClass, stateClass, err := classesForUnit(s.Unit)
	if err != nil {
		return nil, err
	}

	model := b.ModelName(st.ModelNumber)

	// Totals must never go unavailable: a counter that disappears and
	// comes back resets Home Assistant's energy statistics.
	expireAfter := "120"
	availabilityMode := "any"
	if stateClass == "total_increasing" {
		expireAfter = "0"
		availabilityMode = "latest"
	}

	cfg := discoveryConfig{
		Device: discoveryDevice{
			Identifiers:  []string{fmt.Sprintf("solismqtt_%s_%s", model, st.SerialNumber)},
			Manufacturer: "Solis",
			Model:        model,
			Name:         "Solar Inverter",
			SWVersion:    st.FirmwareVersion,
		},
		DeviceClass:       deviceClass,
		Name:              s.Name,
		StateClass:        stateClass,
		StateTopic:        b.StateTopic(st.SerialNumber),
		UniqueID:          fmt.Sprintf("%s_%s_solismqtt", st.SerialNumber, s.Key),
		UnitOfMeasurement: s.Unit,
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", s.Key),
		ExpireAfter:       expireAfter,
		AvailabilityMode:  availabilityMode,
	}

	return json.Marshal(cfg)
}

// statePayload keys the readings the way the value templates expect.
// Pointers so that disabled or missing sensors vanish from the payload
// instead of publishing nulls.
type statePayload struct {
	PowerCurrent        *int     `json:"power_current,omitempty"`
	PowerToday          *float64 `json:"power_today,omitempty"`
	PowerTotal          *float64 `json:"power_total,omitempty"`
	InverterTemperature *float64 `json:"inverter_temperature,omitempty"`
}

// StatePayload builds the state JSON for the enabled sensors.
// Sensors with no reading are skipped.
func (b *Builder) StatePayload(st *inverter.State, enabled map[string]bool) ([]byte, error) {
	var p statePayload
	if enabled["power_current"] {
		p.PowerCurrent = &st.PowerNow
	}
	if enabled["power_today"] {
		p.PowerToday = &st.YieldToday
	}
	if enabled["power_total"] && st.YieldTotal != nil {
		p.PowerTotal = st.YieldTotal
	}
	if enabled["inverter_temperature"] {
		p.InverterTemperature = &st.Temperature
	}
	return json.Marshal(p)
}
