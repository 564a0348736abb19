package inverter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The Solis/Ginlong WiFi stick answers its CGI endpoints with a single
// line of `;`-separated fields padded with NUL bytes on both ends.

// State is one reading from inverter.cgi.
type State struct {
	SerialNumber    string
	ModelNumber     string
	FirmwareVersion string

	// Temperature is the inverter temperature in °C.
	Temperature float64
	// PowerNow is the current output power in W.
	PowerNow int
	// YieldToday is today's production in kWh, rounded to 3 decimals.
	YieldToday float64
	// YieldTotal is the lifetime production in kWh. Nil when the stick
	// reports the literal "d", a known firmware bug.
	YieldTotal *float64

	// AlertsEnabled is nil when the stick reports something other than
	// yes or no.
	AlertsEnabled *bool
}

// DeviceInfo is one reading from moniter.cgi (sic, the stick's own
// spelling): the data logger's WiFi and cloud link status.
type DeviceInfo struct {
	SerialNumber    string
	FirmwareVersion string

	APEnabled *bool
	APSSID    *string
	APIP      *string

	STAEnabled *bool
	STASSID    *string
	STARSSI    *string
	STAIP      *string
	STAMAC     *string

	RemoteServerA *bool
	RemoteServerB *bool
}

// ParseError reports a field that could not be converted.
type ParseError struct {
	Field string
	Index int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("inverter: parsing %s (field %d) from %q: %v", e.Field, e.Index, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Field counts of the two CGI records.
const (
	stateFields  = 8
	deviceFields = 13
)

func splitRecord(raw []byte, want int) ([]string, error) {
	fields := strings.Split(strings.Trim(string(raw), "\x00"), ";")
	if len(fields) < want {
		return nil, fmt.Errorf("inverter: short record: got %d fields, want %d", len(fields), want)
	}
	return fields, nil
}

// ParseState parses an inverter.cgi response body.
func ParseState(raw []byte) (*State, error) {
	fields, err := splitRecord(raw, stateFields)
	if err != nil {
		return nil, err
	}

	st := &State{
		SerialNumber:    fields[0],
		FirmwareVersion: fields[1],
		ModelNumber:     fields[2],
	}

	st.Temperature, err = strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil, &ParseError{Field: "temperature", Index: 3, Value: fields[3], Err: err}
	}

	st.PowerNow, err = strconv.Atoi(fields[4])
	if err != nil {
		return nil, &ParseError{Field: "power_now", Index: 4, Value: fields[4], Err: err}
	}

	today, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, &ParseError{Field: "yield_today", Index: 5, Value: fields[5], Err: err}
	}
	st.YieldToday = math.Round(today*1000) / 1000

	// Certain firmwares report the literal "d" instead of the total.
	if fields[6] != "d" {
		total, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return nil, &ParseError{Field: "yield_total", Index: 6, Value: fields[6], Err: err}
		}
		st.YieldTotal = &total
	}

	st.AlertsEnabled = parseYesNo(fields[7])

	return st, nil
}

// ParseDevice parses a moniter.cgi response body.
// Field 5 is always empty and not used by the stick's own web UI.
func ParseDevice(raw []byte) (*DeviceInfo, error) {
	fields, err := splitRecord(raw, deviceFields)
	if err != nil {
		return nil, err
	}

	return &DeviceInfo{
		SerialNumber:    fields[0],
		FirmwareVersion: fields[1],
		APEnabled:       parseEnabled(fields[2]),
		APSSID:          nullable(fields[3]),
		APIP:            nullable(fields[4]),
		STAEnabled:      parseEnabled(fields[6]),
		STASSID:         nullable(fields[7]),
		STARSSI:         nullable(fields[8]),
		STAIP:           nullable(fields[9]),
		STAMAC:          nullable(fields[10]),
		RemoteServerA:   parseConnected(fields[11]),
		RemoteServerB:   parseConnected(fields[12]),
	}, nil
}

// parseYesNo maps yes/no to a tribool; anything else is unknown.
func parseYesNo(s string) *bool {
	switch strings.ToLower(s) {
	case "yes":
		return boolPtr(true)
	case "no":
		return boolPtr(false)
	}
	return nil
}

// parseEnabled maps the stick's Enable/Disable strings, case-insensitively.
func parseEnabled(s string) *bool {
	switch strings.ToLower(s) {
	case "enable", "enabled":
		return boolPtr(true)
	case "disable", "disabled":
		return boolPtr(false)
	}
	return nil
}

func parseConnected(s string) *bool {
	switch strings.ToLower(s) {
	case "connected":
		return boolPtr(true)
	case "unconnected":
		return boolPtr(false)
	}
	return nil
}

// nullable maps the stick's "null" sentinel to a nil string.
func nullable(s string) *string {
	if s == "null" || s == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool { return &b }
