package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Maintenance prunes old readings on a cron schedule.
type Maintenance struct {
	history   *History
	scheduler *cron.Cron
	retention time.Duration
	logger    *zap.Logger
}

// NewMaintenance schedules pruning of readings older than retention.
// schedule is a standard 5-field cron expression.
func NewMaintenance(history *History, schedule string, retention time.Duration, logger *zap.Logger) (*Maintenance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Maintenance{
		history:   history,
		scheduler: cron.New(),
		retention: retention,
		logger:    logger,
	}

	if _, err := m.scheduler.AddFunc(schedule, m.prune); err != nil {
		return nil, fmt.Errorf("failed to schedule history prune '%s': %w", schedule, err)
	}
	logger.Info("History prune scheduled",
		zap.String("schedule", schedule),
		zap.Duration("retention", retention))

	return m, nil
}

// Start starts the scheduler in its own goroutine.
func (m *Maintenance) Start() {
	m.scheduler.Start()
}

// Stop stops the scheduler and waits for a running prune to finish.
func (m *Maintenance) Stop() {
	ctx := m.scheduler.Stop()
	<-ctx.Done()
}

func (m *Maintenance) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-m.retention)
	if _, err := m.history.PruneOlderThan(ctx, cutoff); err != nil {
		m.logger.Error("History prune failed", zap.Error(err))
	}
}
