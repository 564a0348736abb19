package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/CataIana/solismqtt/internal/inverter"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func testState(power int, today float64) *inverter.State {
	total := 1000.0 + today
	return &inverter.State{
		SerialNumber: "SN1",
		ModelNumber:  "518",
		Temperature:  30.0,
		PowerNow:     power,
		YieldToday:   today,
		YieldTotal:   &total,
	}
}

func TestHistory_RecordAndRecent(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		st := testState(1000+i, float64(i))
		if err := h.RecordReading(ctx, st, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	readings, err := h.RecentReadings(ctx, "SN1", 3)
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(readings))
	}
	// Newest first.
	if readings[0].PowerW != 1004 {
		t.Errorf("expected newest reading first, got power=%d", readings[0].PowerW)
	}
	if readings[0].YieldTotalKWh == nil {
		t.Error("expected stored total")
	}

	// Unknown serial returns nothing.
	other, err := h.RecentReadings(ctx, "SN2", 10)
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no readings for unknown serial, got %d", len(other))
	}
}

func TestHistory_NilTotal(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	st := testState(500, 2.5)
	st.YieldTotal = nil // the "d" firmware bug
	if err := h.RecordReading(ctx, st, time.Now()); err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}

	readings, err := h.RecentReadings(ctx, "SN1", 1)
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	if readings[0].YieldTotalKWh != nil {
		t.Error("expected NULL total to round-trip as nil")
	}
}

func TestHistory_PruneOlderThan(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-100 * 24 * time.Hour)

	if err := h.RecordReading(ctx, testState(100, 1), old); err != nil {
		t.Fatal(err)
	}
	if err := h.RecordReading(ctx, testState(200, 2), now); err != nil {
		t.Fatal(err)
	}

	removed, err := h.PruneOlderThan(ctx, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	stats, err := h.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Readings != 1 {
		t.Errorf("expected 1 remaining reading, got %d", stats.Readings)
	}
}

func TestHistory_DailyYield(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	// Two days of samples; yield_today climbs within a day and resets
	// overnight.
	day1 := time.Now().Add(-26 * time.Hour)
	day2 := time.Now().Add(-2 * time.Hour)

	for i, y := range []float64{1.0, 4.2} {
		if err := h.RecordReading(ctx, testState(100+i, y), day1.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	for i, y := range []float64{0.5, 3.1} {
		if err := h.RecordReading(ctx, testState(200+i, y), day2.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	days, err := h.DailyYield(ctx, "SN1", 7)
	if err != nil {
		t.Fatalf("DailyYield failed: %v", err)
	}
	if len(days) < 1 || len(days) > 2 {
		t.Fatalf("expected 1-2 days, got %d", len(days))
	}
	// The most recent day's max must win.
	last := days[len(days)-1]
	if last.YieldKWh != 3.1 && last.YieldKWh != 4.2 {
		t.Errorf("expected a per-day max, got %v", last.YieldKWh)
	}
}

func TestHistory_MigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	h1, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := h1.RecordReading(context.Background(), testState(1, 1), time.Now()); err != nil {
		t.Fatal(err)
	}
	h1.Close()

	// Reopening must not re-run migrations or lose data.
	h2, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer h2.Close()

	stats, err := h2.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Readings != 1 {
		t.Errorf("expected data to survive reopen, got %d readings", stats.Readings)
	}
}

func TestMaintenance_BadSchedule(t *testing.T) {
	h := openTestHistory(t)
	if _, err := NewMaintenance(h, "not a cron expr", 24*time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestMaintenance_StartStop(t *testing.T) {
	h := openTestHistory(t)
	m, err := NewMaintenance(h, "0 3 * * *", 90*24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMaintenance failed: %v", err)
	}
	m.Start()
	m.Stop() // Must not hang with no running job.
}
