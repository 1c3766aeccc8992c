package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/termai-go/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot(id string) domain.SessionSnapshot {
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	rec := domain.CommandRecord{
		Command:   "git status",
		Directory: "/work/repo",
		StartedAt: started,
		EndedAt:   started.Add(200 * time.Millisecond),
		ExitCode:  0,
		Output:    "On branch main",
		Duration:  200 * time.Millisecond,
		Kind:      domain.KindGit,
	}
	return domain.SessionSnapshot{
		Info: domain.SessionInfo{
			ID:         id,
			Shell:      "/bin/bash",
			WorkingDir: "/work/repo",
			Cols:       80,
			Rows:       24,
			StartedAt:  started,
			GitBranch:  "main",
			Task:       "fix the flaky test",
		},
		Records:   []domain.CommandRecord{rec},
		Important: []domain.ContextEntry{{Record: rec, Relevance: 0.8}},
		Stats: domain.HistoryStats{
			Total:    1,
			TopVerbs: map[string]int{"git": 1},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	want := sampleSnapshot("s-1")

	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load("s-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReplacesExistingSession(t *testing.T) {
	store := newTestStore(t)
	snap := sampleSnapshot("s-1")
	if err := store.Save(snap); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	snap.Records = append(snap.Records, domain.CommandRecord{
		Command:   "git push",
		StartedAt: snap.Info.StartedAt.Add(time.Minute),
		EndedAt:   snap.Info.StartedAt.Add(time.Minute + time.Second),
		ExitCode:  1,
		ErrorText: "rejected",
		Duration:  time.Second,
		Kind:      domain.KindGit,
	})
	snap.Stats.Total = 2
	if err := store.Save(snap); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := store.Load("s-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(got.Records))
	}
	if got.Stats.Total != 2 {
		t.Fatalf("stats total = %d", got.Stats.Total)
	}
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	older := sampleSnapshot("s-old")
	newer := sampleSnapshot("s-new")
	newer.Info.StartedAt = older.Info.StartedAt.Add(time.Hour)

	if err := store.Save(older); err != nil {
		t.Fatalf("Save older: %v", err)
	}
	if err := store.Save(newer); err != nil {
		t.Fatalf("Save newer: %v", err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("sessions = %d", len(infos))
	}
	if infos[0].ID != "s-new" || infos[1].ID != "s-old" {
		t.Fatalf("order = %s, %s", infos[0].ID, infos[1].ID)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("nope"); err == nil {
		t.Fatalf("want error for unknown session")
	}
}
