package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// probeCmd reads the inverter once and prints the reading.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Read the inverter once and print the reading",
	Long: `Performs a single read of inverter.cgi and prints the parsed reading
as JSON. Useful for checking connectivity and credentials before
starting the daemon.`,
	RunE: runProbe,
}

// deviceCmd reads the data logger's WiFi status.
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Print the WiFi data logger status",
	Long: `Performs a single read of moniter.cgi and prints the data logger's
AP/STA WiFi status and cloud link state as JSON.`,
	RunE: runDevice,
}

// probeReading is the printable form of a state reading.
type probeReading struct {
	SerialNumber        string   `json:"serial_number"`
	ModelNumber         string   `json:"model_number"`
	FirmwareVersion     string   `json:"firmware_version"`
	InverterTemperature float64  `json:"inverter_temperature"`
	PowerCurrent        int      `json:"power_current"`
	PowerToday          float64  `json:"power_today"`
	PowerTotal          *float64 `json:"power_total"`
	AlertsEnabled       *bool    `json:"alerts_enabled"`
}

type probeDevice struct {
	SerialNumber    string  `json:"sn"`
	FirmwareVersion string  `json:"fwver"`
	WirelessAP      *bool   `json:"wireless_ap"`
	WirelessAPSSID  *string `json:"wireless_ap_ssid"`
	WirelessAPIP    *string `json:"wireless_ap_ip"`
	WirelessSTA     *bool   `json:"wireless_sta"`
	WirelessSTASSID *string `json:"wireless_sta_ssid"`
	WirelessSTARSSI *string `json:"wireless_sta_rssi"`
	WirelessSTAIP   *string `json:"wireless_sta_ip"`
	WirelessSTAMAC  *string `json:"wireless_sta_mac"`
	RemoteServerA   *bool   `json:"remote_server_a_connected"`
	RemoteServerB   *bool   `json:"remote_server_b_connected"`
}

func probeClient() (*inverter.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return inverter.New(cfg.Inverter.IP, cfg.Inverter.Username, cfg.Inverter.Password, cfg.HTTPTimeout(), logger), nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	client, err := probeClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := client.ReadState(ctx)
	if err != nil {
		return err
	}

	return printJSON(probeReading{
		SerialNumber:        st.SerialNumber,
		ModelNumber:         st.ModelNumber,
		FirmwareVersion:     st.FirmwareVersion,
		InverterTemperature: st.Temperature,
		PowerCurrent:        st.PowerNow,
		PowerToday:          st.YieldToday,
		PowerTotal:          st.YieldTotal,
		AlertsEnabled:       st.AlertsEnabled,
	})
}

func runDevice(cmd *cobra.Command, args []string) error {
	client, err := probeClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	dev, err := client.ReadDevice(ctx)
	if err != nil {
		return err
	}

	return printJSON(probeDevice{
		SerialNumber:    dev.SerialNumber,
		FirmwareVersion: dev.FirmwareVersion,
		WirelessAP:      dev.APEnabled,
		WirelessAPSSID:  dev.APSSID,
		WirelessAPIP:    dev.APIP,
		WirelessSTA:     dev.STAEnabled,
		WirelessSTASSID: dev.STASSID,
		WirelessSTARSSI: dev.STARSSI,
		WirelessSTAIP:   dev.STAIP,
		WirelessSTAMAC:  dev.STAMAC,
		RemoteServerA:   dev.RemoteServerA,
		RemoteServerB:   dev.RemoteServerB,
	})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
