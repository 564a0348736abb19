// Package ui renders the live inverter dashboard.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// Poller is the inverter surface the dashboard needs.
// *inverter.Client implements it.
type Poller interface {
	ReadState(ctx context.Context) (*inverter.State, error)
	ReadDevice(ctx context.Context) (*inverter.DeviceInfo, error)
}

// readingMsg carries a successful poll result.
type readingMsg struct {
	state  *inverter.State
	device *inverter.DeviceInfo
	at     time.Time
}

// readErrMsg carries a failed poll.
type readErrMsg struct {
	err error
	at  time.Time
}

// tickMsg schedules the next poll.
type tickMsg time.Time

// Dashboard is the bubbletea model for the live view.
type Dashboard struct {
	client   Poller
	addr     string
	interval time.Duration
	styles   Styles
	spinner  spinner.Model

	state      *inverter.State
	device     *inverter.DeviceInfo
	err        error
	lastUpdate time.Time
	polling    bool
	width      int
}

// NewDashboard creates the dashboard model.
func NewDashboard(client Poller, addr string, interval time.Duration) Dashboard {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("130"))

	return Dashboard{
		client:   client,
		addr:     addr,
		interval: interval,
		styles:   DefaultStyles(),
		spinner:  sp,
		polling:  true,
	}
}

// Init starts the spinner and the first poll.
func (m Dashboard) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// poll reads the inverter in a tea.Cmd so the UI stays responsive.
func (m Dashboard) poll() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := client.ReadState(ctx)
		if err != nil {
			return readErrMsg{err: err, at: time.Now()}
		}
		// Device info is best-effort; the readings card works without it.
		dev, _ := client.ReadDevice(ctx)
		return readingMsg{state: st, device: dev, at: time.Now()}
	}
}

func (m Dashboard) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.polling = true
			return m, m.poll()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case readingMsg:
		m.state = msg.state
		m.device = msg.device
		m.err = nil
		m.lastUpdate = msg.at
		m.polling = false
		return m, m.tick()

	case readErrMsg:
		m.err = msg.err
		m.lastUpdate = msg.at
		m.polling = false
		return m, m.tick()

	case tickMsg:
		m.polling = true
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("solismqtt") + " " + m.styles.Dim.Render(m.addr))
	sb.WriteString("\n\n")

	if m.state == nil && m.err == nil {
		sb.WriteString(m.spinner.View() + " Waiting for the inverter to wake up...\n")
		sb.WriteString(m.styles.Dim.Render("The WiFi stick is off while the panels are dark.") + "\n")
		return sb.String()
	}

	if m.state != nil {
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.readingsCard(), m.deviceCard()))
		sb.WriteString("\n")
	}

	if m.err != nil {
		sb.WriteString(m.styles.ErrorBox.Render("poll failed: "+m.err.Error()) + "\n")
	}

	status := fmt.Sprintf("updated %s", m.lastUpdate.Format("15:04:05"))
	if m.polling {
		status = m.spinner.View() + " polling"
	}
	sb.WriteString("\n" + m.styles.Dim.Render(status+"  ·  r refresh  ·  q quit") + "\n")

	return sb.String()
}

func (m Dashboard) readingsCard() string {
	st := m.state
	var sb strings.Builder

	sb.WriteString(m.styles.Value.Render(st.SerialNumber) + "\n")
	sb.WriteString(m.styles.Dim.Render(fmt.Sprintf("model %s · fw %s", st.ModelNumber, st.FirmwareVersion)) + "\n\n")

	row := func(label, value string) {
		sb.WriteString(m.styles.Label.Render(label) + m.styles.Value.Render(value) + "\n")
	}

	row("Current Power", fmt.Sprintf("%d W", st.PowerNow))
	row("Today", fmt.Sprintf("%.3f kWh", st.YieldToday))
	if st.YieldTotal != nil {
		row("Total", fmt.Sprintf("%.1f kWh", *st.YieldTotal))
	} else {
		row("Total", m.styles.Dim.Render("unavailable"))
	}
	row("Temperature", fmt.Sprintf("%.1f °C", st.Temperature))

	return m.styles.Card.Render(sb.String())
}

func (m Dashboard) deviceCard() string {
	if m.device == nil {
		return ""
	}
	dev := m.device
	var sb strings.Builder

	sb.WriteString(m.styles.Value.Render("Data Logger") + "\n\n")

	row := func(label, value string) {
		sb.WriteString(m.styles.Label.Render(label) + value + "\n")
	}

	row("WiFi", m.linkState(dev.STAEnabled, strOr(dev.STASSID, "-")))
	row("Signal", strOr(dev.STARSSI, "-"))
	row("IP", strOr(dev.STAIP, "-"))
	row("Cloud A", m.connState(dev.RemoteServerA))
	row("Cloud B", m.connState(dev.RemoteServerB))

	return m.styles.Card.Render(sb.String())
}

func (m Dashboard) linkState(enabled *bool, ssid string) string {
	switch {
	case enabled == nil:
		return m.styles.Dim.Render("unknown")
	case *enabled:
		return m.styles.Good.Render(ssid)
	default:
		return m.styles.Bad.Render("disabled")
	}
}

func (m Dashboard) connState(connected *bool) string {
	switch {
	case connected == nil:
		return m.styles.Dim.Render("unknown")
	case *connected:
		return m.styles.Good.Render("connected")
	default:
		return m.styles.Bad.Render("unconnected")
	}
}

func strOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
