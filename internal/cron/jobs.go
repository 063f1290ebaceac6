package cron

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flemzord/mcphub/internal/history"
)

// DefaultRetention is how long execution records are kept.
const DefaultRetention = 14 * 24 * time.Hour

// staleRunAge is how old a staged script file must be before the sweeper
// treats it as leaked. In-flight scripts live seconds, not hours.
const staleRunAge = time.Hour

// PruneHistoryJob removes execution records older than the retention window.
type PruneHistoryJob struct {
	Store     *history.Store
	Retention time.Duration
	Logger    *slog.Logger
}

// Name implements Job.
func (j *PruneHistoryJob) Name() string { return "prune-history" }

// Schedule implements Job: hourly.
func (j *PruneHistoryJob) Schedule() string { return "0 * * * *" }

// Run implements Job.
func (j *PruneHistoryJob) Run(ctx context.Context) error {
	retention := j.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := j.Store.Prune(ctx, retention)
	if err != nil {
		return err
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("pruned execution history", "removed", n)
	}
	return nil
}

// SweepRunsJob deletes staged script files an earlier crash left behind.
// Normal executions delete their own file on completion.
type SweepRunsJob struct {
	RunsDir string
	Logger  *slog.Logger
}

// Name implements Job.
func (j *SweepRunsJob) Name() string { return "sweep-runs" }

// Schedule implements Job: every 15 minutes.
func (j *SweepRunsJob) Schedule() string { return "*/15 * * * *" }

// Run implements Job.
func (j *SweepRunsJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-staleRunAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".py") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.RunsDir, entry.Name())
		if err := os.Remove(path); err == nil && j.Logger != nil {
			j.Logger.Info("removed stale script", "path", path)
		}
	}
	return nil
}
