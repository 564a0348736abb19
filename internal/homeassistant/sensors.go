package homeassistant

import (
	"fmt"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// Sensor is one published metric.
type Sensor struct {
	// Key is the internal name used in topics, unique ids and state
	// payloads.
	Key string
	// Name is the entity name shown in Home Assistant.
	Name string
	// Unit is the unit of measurement; it also determines the device
	// and state classes.
	Unit string
}

// Sensors returns the published sensors in their wire order.
func Sensors() []Sensor {
	return []Sensor{
		{Key: "power_current", Name: "Current Power", Unit: "W"},
		{Key: "power_today", Name: "Today's Production", Unit: "kWh"},
		{Key: "power_total", Name: "Total Production", Unit: "kWh"},
		{Key: "inverter_temperature", Name: "Inverter Temperature", Unit: "°C"},
	}
}

// classesForUnit maps a unit to Home Assistant device and state classes.
func classesForUnit(unit string) (deviceClass, stateClass string, err error) {
	switch unit {
	case "kWh":
		return "energy", "total_increasing", nil
	case "W":
		return "power", "measurement", nil
	case "°C":
		return "temperature", "measurement", nil
	}
	return "", "", fmt.Errorf("homeassistant: no device class for unit %q", unit)
}

// Value extracts a sensor's reading from a state. The second return is
// false when the reading is missing (the broken lifetime total).
func Value(st *inverter.State, key string) (any, bool) {
	switch key {
	case "power_current":
		return st.PowerNow, true
	case "power_today":
		return st.YieldToday, true
	case "power_total":
		if st.YieldTotal == nil {
			return nil, false
		}
		return *st.YieldTotal, true
	case "inverter_temperature":
		return st.Temperature, true
	}
	return nil, false
}
