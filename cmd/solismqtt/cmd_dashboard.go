package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/CataIana/solismqtt/cmd/solismqtt/ui"
	"github.com/CataIana/solismqtt/internal/inverter"
)

// dashboardCmd shows a live terminal view of the inverter.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal view of the inverter",
	Long: `Polls the inverter at the configured interval and renders the readings
and the data logger's link status in the terminal. Nothing is published
to MQTT; this is a read-only view.`,
	RunE: runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := inverter.New(cfg.Inverter.IP, cfg.Inverter.Username, cfg.Inverter.Password, cfg.HTTPTimeout(), logger)

	model := ui.NewDashboard(client, cfg.Inverter.IP, cfg.PollInterval())
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
