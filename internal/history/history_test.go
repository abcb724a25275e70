package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"seriesd/internal/logging"
	"seriesd/internal/series"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("Path = %q, want %q", store.Path(), path)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var count int
	if err := reopened.db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("schema_migrations rows = %d, want 1", count)
	}
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []Run{
		{RunID: "a", Key: "20260301-1-1", Pipeline: "copy", Outcome: OutcomeCompleted, Items: 3, StartedAt: base, FinishedAt: base.Add(10 * time.Second)},
		{RunID: "b", Key: "20260301-1-2", Pipeline: "copy", Outcome: OutcomeTerminated, Items: 1, Failures: 1, Terminated: true, StartedAt: base, FinishedAt: base.Add(20 * time.Second), Error: ""},
		{RunID: "c", Key: "20260301-1-3", Pipeline: "copy", Outcome: OutcomeFailed, FinishedAt: base.Add(30 * time.Second), Error: "finish series: boom"},
	}
	for _, run := range runs {
		if _, err := store.Record(ctx, run); err != nil {
			t.Fatalf("Record %s: %v", run.RunID, err)
		}
	}

	got, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(got))
	}
	if got[0].RunID != "c" || got[1].RunID != "b" {
		t.Fatalf("List order = %s,%s, want c,b", got[0].RunID, got[1].RunID)
	}
	if got[0].Error != "finish series: boom" || !got[0].StartedAt.IsZero() {
		t.Fatalf("unexpected failed row: %+v", got[0])
	}
	if !got[1].Terminated || got[1].Failures != 1 || got[1].Duration() != 20*time.Second {
		t.Fatalf("unexpected terminated row: %+v", got[1])
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all returned %d rows, want 3", len(all))
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[OutcomeCompleted] != 1 || counts[OutcomeTerminated] != 1 || counts[OutcomeFailed] != 1 {
		t.Fatalf("Counts = %v", counts)
	}
}

func TestListKeyKeepsReopenedSeriesSeparate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second"} {
		run := Run{RunID: id, Key: "k", Pipeline: "log", Outcome: OutcomeCompleted, FinishedAt: base.Add(time.Duration(i) * time.Minute)}
		if _, err := store.Record(ctx, run); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := store.Record(ctx, Run{RunID: "other", Key: "other", Pipeline: "log", Outcome: OutcomeCompleted}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := store.ListKey(ctx, "k")
	if err != nil {
		t.Fatalf("ListKey: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "first" || runs[1].RunID != "second" {
		t.Fatalf("ListKey = %+v", runs)
	}
}

func TestRecorderWritesObserverEvents(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(store, "copy", logging.NewNop())

	var _ series.Observer = rec

	started := time.Now().Add(-time.Second)
	rec.WorkerFinished(series.WorkerInfo{Key: "ok", ID: "run-1", Items: 2, StartedAt: started}, nil)
	rec.WorkerFinished(series.WorkerInfo{Key: "stopped", ID: "run-2", Items: 1, Terminated: true, StartedAt: started}, nil)
	rec.WorkerFinished(series.WorkerInfo{Key: "bad", ID: "run-3", StartedAt: started}, errors.New("rename failed"))
	rec.WorkerSetupFailed("nostart", errors.New("dial refused"))

	runs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	byKey := make(map[string]Run, len(runs))
	for _, run := range runs {
		byKey[run.Key] = run
	}
	cases := map[string]Outcome{
		"ok":      OutcomeCompleted,
		"stopped": OutcomeTerminated,
		"bad":     OutcomeFailed,
		"nostart": OutcomeSetupFailed,
	}
	for key, want := range cases {
		run, ok := byKey[key]
		if !ok {
			t.Fatalf("missing run for %s", key)
		}
		if run.Outcome != want {
			t.Fatalf("%s outcome = %s, want %s", key, run.Outcome, want)
		}
		if run.Pipeline != "copy" {
			t.Fatalf("%s pipeline = %q", key, run.Pipeline)
		}
	}
	if byKey["bad"].Error != "rename failed" {
		t.Fatalf("bad error = %q", byKey["bad"].Error)
	}
	if byKey["ok"].Items != 2 || byKey["ok"].RunID != "run-1" {
		t.Fatalf("ok row = %+v", byKey["ok"])
	}
}
