package cron

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/mcphub/internal/history"
	"github.com/flemzord/mcphub/internal/sandbox"
)

func TestPruneHistoryJob(t *testing.T) {
	t.Parallel()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Record(ctx, sandbox.Execution{
		ID: "ancient", State: sandbox.ExecCompleted, StartedAt: time.Now().Add(-30 * 24 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, sandbox.Execution{
		ID: "recent", State: sandbox.ExecCompleted, StartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	job := &PruneHistoryJob{Store: store}
	if err := job.Run(ctx); err != nil {
		t.Fatal(err)
	}

	execs, err := store.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].ID != "recent" {
		t.Errorf("executions after prune = %+v", execs)
	}
}

func TestSweepRunsJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	stale := filepath.Join(dir, "stale.py")
	if err := os.WriteFile(stale, []byte("pass"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(dir, "fresh.py")
	if err := os.WriteFile(fresh, []byte("pass"), 0o644); err != nil {
		t.Fatal(err)
	}

	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, old, old); err != nil {
		t.Fatal(err)
	}

	job := &SweepRunsJob{RunsDir: dir}
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale script should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh script should survive")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("non-script files should survive")
	}
}

func TestSweepRunsJob_MissingDir(t *testing.T) {
	t.Parallel()

	job := &SweepRunsJob{RunsDir: filepath.Join(t.TempDir(), "nope")}
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("missing dir should not be an error: %v", err)
	}
}

func TestScheduler_DuplicateJob(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	job := &SweepRunsJob{RunsDir: t.TempDir()}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterJob(job); err == nil {
		t.Error("duplicate job name should be rejected")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RegisterJob(&SweepRunsJob{RunsDir: t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}
