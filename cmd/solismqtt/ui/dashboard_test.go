package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CataIana/solismqtt/internal/inverter"
)

type fakePoller struct {
	state *inverter.State
	err   error
}

func (f *fakePoller) ReadState(ctx context.Context) (*inverter.State, error) {
	return f.state, f.err
}

func (f *fakePoller) ReadDevice(ctx context.Context) (*inverter.DeviceInfo, error) {
	return nil, errors.New("not implemented")
}

func testState() *inverter.State {
	total := 1234.5
	return &inverter.State{
		SerialNumber:    "SN1",
		ModelNumber:     "518",
		FirmwareVersion: "FW1",
		Temperature:     31.5,
		PowerNow:        1250,
		YieldToday:      6.823,
		YieldTotal:      &total,
	}
}

func TestDashboard_InitialViewShowsWaiting(t *testing.T) {
	m := NewDashboard(&fakePoller{}, "192.168.1.50", time.Minute)

	view := m.View()
	if !strings.Contains(view, "Waiting for the inverter") {
		t.Errorf("initial view should show the wake-wait hint, got:\n%s", view)
	}
}

func TestDashboard_RendersReading(t *testing.T) {
	m := NewDashboard(&fakePoller{}, "192.168.1.50", time.Minute)

	updated, _ := m.Update(readingMsg{state: testState(), at: time.Now()})
	view := updated.View()

	for _, want := range []string{"SN1", "1250 W", "6.823 kWh", "31.5 °C"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDashboard_RendersBrokenTotal(t *testing.T) {
	st := testState()
	st.YieldTotal = nil
	m := NewDashboard(&fakePoller{}, "192.168.1.50", time.Minute)

	updated, _ := m.Update(readingMsg{state: st, at: time.Now()})
	view := updated.View()

	if !strings.Contains(view, "unavailable") {
		t.Errorf("view should mark the missing total as unavailable:\n%s", view)
	}
}

func TestDashboard_RendersError(t *testing.T) {
	m := NewDashboard(&fakePoller{}, "192.168.1.50", time.Minute)

	updated, _ := m.Update(readingMsg{state: testState(), at: time.Now()})
	updated, _ = updated.Update(readErrMsg{err: errors.New("connection refused"), at: time.Now()})
	view := updated.View()

	if !strings.Contains(view, "connection refused") {
		t.Errorf("view missing error message:\n%s", view)
	}
	// The last good reading stays on screen during outages.
	if !strings.Contains(view, "SN1") {
		t.Errorf("view should keep the last reading:\n%s", view)
	}
}

func TestDashboard_QuitKeys(t *testing.T) {
	m := NewDashboard(&fakePoller{}, "192.168.1.50", time.Minute)

	for _, key := range []string{"q", "ctrl+c"} {
		var msg tea.KeyMsg
		if key == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Errorf("key %q should produce a quit command", key)
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %q should quit", key)
		}
	}
}

func TestDashboard_TickTriggersPoll(t *testing.T) {
	m := NewDashboard(&fakePoller{state: testState()}, "192.168.1.50", time.Minute)

	updated, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick should schedule a poll")
	}
	if msg, ok := cmd().(readingMsg); !ok {
		t.Errorf("expected readingMsg from poll, got %T", cmd())
	} else if msg.state.SerialNumber != "SN1" {
		t.Errorf("unexpected state: %+v", msg.state)
	}
	_ = updated
}
