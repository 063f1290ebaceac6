package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/mcphub/internal/sandbox"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndGet(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	want := sandbox.Execution{
		ID:        "exec-1",
		State:     sandbox.ExecCompleted,
		ExitCode:  0,
		Stdout:    "hello\n",
		Stderr:    "",
		StartedAt: time.Now().Add(-time.Minute),
		Duration:  1200 * time.Millisecond,
	}
	if err := store.Record(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != want.State || got.Stdout != want.Stdout || got.Duration != want.Duration {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("got %v, want sql.ErrNoRows", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "mid", "new"} {
		ex := sandbox.Execution{
			ID:        id,
			State:     sandbox.ExecCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(ctx, ex); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("List = %v", got)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, sandbox.Execution{
		ID: "ancient", State: sandbox.ExecCompleted, StartedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, sandbox.Execution{
		ID: "recent", State: sandbox.ExecCompleted, StartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.Get(ctx, "recent"); err != nil {
		t.Errorf("recent should survive: %v", err)
	}
	if _, err := store.Get(ctx, "ancient"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ancient should be pruned, got %v", err)
	}
}

func TestOpen_MigrationIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening re-applies the schema without error.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	_ = store.Close()
}
