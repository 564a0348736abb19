// Package store persists inverter readings to SQLite so production
// history survives daemon restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// History is the reading history store. Safe for concurrent use; the
// underlying pool is pinned to a single connection because SQLite
// serializes writers anyway.
type History struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *zap.Logger
}

// Reading is one stored sample.
type Reading struct {
	ID            int64
	Serial        string
	SampledAt     time.Time
	PowerW        int
	YieldTodayKWh float64
	YieldTotalKWh *float64
	TemperatureC  float64
}

// DailyYield is the production total for one local day.
type DailyYield struct {
	Day      string // YYYY-MM-DD
	YieldKWh float64
}

// Stats summarizes the store contents.
type Stats struct {
	Readings int64
	Oldest   time.Time
	Newest   time.Time
}

// Open initializes the SQLite database at the given path.
func Open(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("Failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("Failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// synchronous=NORMAL is safe with WAL and far faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("Failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	h := &History{db: db, dbPath: path, logger: logger}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("History store opened", zap.String("path", path))
	return h, nil
}

// migrations are applied in order; schema_migrations records progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL,
		sampled_at DATETIME NOT NULL,
		power_w INTEGER NOT NULL,
		yield_today_kwh REAL NOT NULL,
		yield_total_kwh REAL,
		temperature_c REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_serial_time ON readings(serial, sampled_at);`,
}

func (h *History) migrate() error {
	if _, err := h.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := h.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if _, err := h.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := h.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		h.logger.Debug("Applied migration", zap.Int("version", i+1))
	}

	return nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// RecordReading stores one sample.
func (h *History) RecordReading(ctx context.Context, st *inverter.State, sampledAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO readings (serial, sampled_at, power_w, yield_today_kwh, yield_total_kwh, temperature_c)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		st.SerialNumber, sampledAt.UTC(), st.PowerNow, st.YieldToday, st.YieldTotal, st.Temperature,
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// RecentReadings returns the newest samples for a serial, newest first.
func (h *History) RecentReadings(ctx context.Context, serial string, limit int) ([]Reading, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, serial, sampled_at, power_w, yield_today_kwh, yield_total_kwh, temperature_c
		 FROM readings WHERE serial = ? ORDER BY sampled_at DESC LIMIT ?`,
		serial, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var results []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.Serial, &r.SampledAt, &r.PowerW, &r.YieldTodayKWh, &r.YieldTotalKWh, &r.TemperatureC); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DailyYield returns per-day production for the last `days` days.
// The day's yield is the maximum of yield_today, which the inverter
// resets at midnight.
func (h *History) DailyYield(ctx context.Context, serial string, days int) ([]DailyYield, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if days <= 0 {
		days = 30
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT date(sampled_at, 'localtime') AS day, MAX(yield_today_kwh)
		 FROM readings
		 WHERE serial = ? AND sampled_at >= datetime('now', ?)
		 GROUP BY day ORDER BY day`,
		serial, fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily yield: %w", err)
	}
	defer rows.Close()

	var results []DailyYield
	for rows.Next() {
		var d DailyYield
		if err := rows.Scan(&d.Day, &d.YieldKWh); err != nil {
			return nil, fmt.Errorf("failed to scan daily yield: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// PruneOlderThan deletes samples older than the cutoff and returns the
// number removed.
func (h *History) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.db.ExecContext(ctx, "DELETE FROM readings WHERE sampled_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		h.logger.Info("Pruned history", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// GetStats returns store statistics.
func (h *History) GetStats(ctx context.Context) (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var s Stats
	var oldest, newest sql.NullTime
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(sampled_at), MAX(sampled_at) FROM readings",
	).Scan(&s.Readings, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	if oldest.Valid {
		s.Oldest = oldest.Time
	}
	if newest.Valid {
		s.Newest = newest.Time
	}
	return s, nil
}
