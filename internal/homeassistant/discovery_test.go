package homeassistant

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/CataIana/solismqtt/internal/inverter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *inverter.State {
	total := 1234.5
	return &inverter.State{
		SerialNumber:    "120B40xxxxx",
		ModelNumber:     "518",
		FirmwareVersion: "MW_08_512_0501_1.58",
		Temperature:     31.5,
		PowerNow:        1250,
		YieldToday:      6.823,
		YieldTotal:      &total,
	}
}

func TestBuilder_Topics(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	assert.Equal(t, "homeassistant/sensor/SN1/power_current/config", b.ConfigTopic("SN1", "power_current"))
	assert.Equal(t, "solismqtt/SN1", b.StateTopic("SN1"))
}

func TestBuilder_ModelName(t *testing.T) {
	b := NewBuilder("", "", map[string]string{"600": "S6-GR1P5K"})

	assert.Equal(t, "S5-GR3P10K-LV", b.ModelName("518"), "built-in table")
	assert.Equal(t, "S6-GR1P5K", b.ModelName("600"), "config extension")
	assert.Equal(t, "999", b.ModelName("999"), "unknown codes pass through")
}

func TestBuilder_DiscoveryConfig_Power(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	raw, err := b.DiscoveryConfig(testState(), Sensor{Key: "power_current", Name: "Current Power", Unit: "W"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "power", doc["device_class"])
	assert.Equal(t, "measurement", doc["state_class"])
	assert.Equal(t, "Current Power", doc["name"])
	assert.Equal(t, "solismqtt/120B40xxxxx", doc["state_topic"])
	assert.Equal(t, "120B40xxxxx_power_current_solismqtt", doc["unique_id"])
	assert.Equal(t, "W", doc["unit_of_measurement"])
	assert.Equal(t, "{{ value_json.power_current }}", doc["value_template"])
	assert.Equal(t, "120", doc["expire_after"])
	assert.Equal(t, "any", doc["availability_mode"])

	device := doc["device"].(map[string]any)
	assert.Equal(t, "Solis", device["manufacturer"])
	assert.Equal(t, "S5-GR3P10K-LV", device["model"])
	assert.Equal(t, "Solar Inverter", device["name"])
	assert.Equal(t, []any{"solismqtt_S5-GR3P10K-LV_120B40xxxxx"}, device["identifiers"])
}

func TestBuilder_DiscoveryConfig_EnergyNeverExpires(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	raw, err := b.DiscoveryConfig(testState(), Sensor{Key: "power_total", Name: "Total Production", Unit: "kWh"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "energy", doc["device_class"])
	assert.Equal(t, "total_increasing", doc["state_class"])
	assert.Equal(t, "0", doc["expire_after"])
	assert.Equal(t, "latest", doc["availability_mode"])
}

func TestBuilder_DiscoveryConfig_FieldOrder(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	raw, err := b.DiscoveryConfig(testState(), Sensor{Key: "inverter_temperature", Name: "Inverter Temperature", Unit: "°C"})
	require.NoError(t, err)

	// Consumers diff retained configs byte-for-byte; keep the original
	// wire order stable.
	s := string(raw)
	order := []string{`"device"`, `"device_class"`, `"name"`, `"state_class"`, `"state_topic"`,
		`"unique_id"`, `"unit_of_measurement"`, `"value_template"`, `"expire_after"`, `"availability_mode"`}
	// The device block nests its own "name", so each key is searched
	// after the previous match rather than from the start.
	pos := 0
	for _, key := range order {
		idx := strings.Index(s[pos:], key)
		require.GreaterOrEqual(t, idx, 0, "key %s missing or out of order", key)
		pos += idx + len(key)
	}
}

func TestBuilder_DiscoveryConfig_UnknownUnit(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	_, err := b.DiscoveryConfig(testState(), Sensor{Key: "x", Name: "X", Unit: "Hz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Hz")
}

func TestBuilder_StatePayload(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)
	enabled := map[string]bool{
		"power_current":        true,
		"power_today":          true,
		"power_total":          true,
		"inverter_temperature": true,
	}

	raw, err := b.StatePayload(testState(), enabled)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, float64(1250), doc["power_current"])
	assert.Equal(t, 6.823, doc["power_today"])
	assert.Equal(t, 1234.5, doc["power_total"])
	assert.Equal(t, 31.5, doc["inverter_temperature"])
}

func TestBuilder_StatePayload_SkipsMissingAndDisabled(t *testing.T) {
	b := NewBuilder("homeassistant", "solismqtt", nil)

	st := testState()
	st.YieldTotal = nil // the "d" firmware bug

	raw, err := b.StatePayload(st, map[string]bool{
		"power_current": true,
		"power_today":   false,
		"power_total":   true,
	})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Contains(t, doc, "power_current")
	assert.NotContains(t, doc, "power_today", "disabled sensor published")
	assert.NotContains(t, doc, "power_total", "missing reading published")
	assert.NotContains(t, doc, "inverter_temperature")
}

func TestSensors_Registry(t *testing.T) {
	sensors := Sensors()
	require.Len(t, sensors, 4)

	// Wire order matters: discovery configs are published in this order.
	keys := make([]string, 0, len(sensors))
	for _, s := range sensors {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"power_current", "power_today", "power_total", "inverter_temperature"}, keys)
}

func TestValue(t *testing.T) {
	st := testState()

	v, ok := Value(st, "power_current")
	require.True(t, ok)
	assert.Equal(t, 1250, v)

	st.YieldTotal = nil
	_, ok = Value(st, "power_total")
	assert.False(t, ok, "missing total must report not-ok")

	_, ok = Value(st, "nonexistent")
	assert.False(t, ok)
}
