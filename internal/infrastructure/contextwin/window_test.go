package contextwin

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
)

func record(command string, exitCode int, kind domain.CommandKind, at time.Time) domain.CommandRecord {
	return domain.CommandRecord{
		Command:   command,
		Directory: "/work",
		StartedAt: at,
		EndedAt:   at.Add(time.Second),
		ExitCode:  exitCode,
		Kind:      kind,
	}
}

func TestScoreBounds(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	commands := []domain.CommandRecord{
		record("rm -rf /tmp/x", 0, domain.KindDangerous, base),
		record("git push", 1, domain.KindGit, base),
		record("ls -la", 0, domain.KindNavigation, base),
		record("weird", 0, domain.KindOther, base),
		record("cat file", 0, domain.KindText, base),
	}
	for _, rec := range commands {
		entry := w.AddCompleted(rec)
		if entry.Relevance < 0 || entry.Relevance > 1 {
			t.Fatalf("score out of [0,1] for %q: %f", rec.Command, entry.Relevance)
		}
	}
}

func TestScoreRules(t *testing.T) {
	base := time.Now()
	tests := []struct {
		name string
		rec  domain.CommandRecord
		want float64
	}{
		{"error wins", record("ls", 1, domain.KindNavigation, base), 0.9},
		{"dangerous", record("rm -rf /tmp/x", 0, domain.KindDangerous, base), 0.9},
		{"git", record("git status", 0, domain.KindGit, base), 0.8},
		{"package", record("npm install", 0, domain.KindPackage, base), 0.7},
		{"navigation capped", record("ls -la", 0, domain.KindNavigation, base), 0.3},
		{"default", record("weird", 0, domain.KindOther, base), 0.5},
	}
	for _, tc := range tests {
		w := NewWindow(20, 4000)
		entry := w.AddCompleted(tc.rec)
		if entry.Relevance != tc.want {
			t.Fatalf("%s: score = %f, want %f", tc.name, entry.Relevance, tc.want)
		}
	}
}

func TestTaskKeywordBoost(t *testing.T) {
	w := NewWindow(20, 4000)
	w.MarkTask("fix docker deployment")
	entry := w.AddCompleted(record("docker ps", 0, domain.KindOther, time.Now()))
	if entry.Relevance < 0.7 {
		t.Fatalf("task keyword should raise score to >= 0.7, got %f", entry.Relevance)
	}
}

func TestImportantSetSurvivesEviction(t *testing.T) {
	w := NewWindow(3, 4000)
	base := time.Now()
	w.AddCompleted(record("git push", 1, domain.KindGit, base))
	for i := 0; i < 5; i++ {
		w.AddCompleted(record(fmt.Sprintf("ls %d", i), 0, domain.KindNavigation, base.Add(time.Duration(i+1)*time.Second)))
	}
	if w.Len() != 3 {
		t.Fatalf("rolling window should hold 3, got %d", w.Len())
	}
	important := w.Important()
	if len(important) != 1 || important[0].Record.Command != "git push" {
		t.Fatalf("important entry lost: %+v", important)
	}
}

func TestAssembleChronologicalAndFiltered(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	w.AddCompleted(record("git init", 0, domain.KindGit, base))
	w.AddCompleted(record("ls", 0, domain.KindNavigation, base.Add(time.Second)))
	w.AddCompleted(record("make build", 1, domain.KindDev, base.Add(2*time.Second)))

	payload := w.Assemble(4000)
	if len(payload.Entries) != 2 {
		t.Fatalf("low-relevance entry should be excluded, got %d entries", len(payload.Entries))
	}
	if payload.Entries[0].Record.Command != "git init" || payload.Entries[1].Record.Command != "make build" {
		t.Fatalf("payload not chronological: %+v", payload.Entries)
	}
}

func TestAssembleUnfilteredIncludesAll(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	w.AddCompleted(record("ls", 0, domain.KindNavigation, base))
	w.AddCompleted(record("git init", 0, domain.KindGit, base.Add(time.Second)))

	payload := w.AssembleAll(4000)
	if len(payload.Entries) != 2 {
		t.Fatalf("unfiltered assembly should include everything, got %d", len(payload.Entries))
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	big := record("make build", 1, domain.KindDev, base)
	big.Output = strings.Repeat("x", 4000) // ~1000 tokens
	w.AddCompleted(big)
	w.AddCompleted(record("git status", 0, domain.KindGit, base.Add(time.Second)))

	payload := w.Assemble(100)
	for _, entry := range payload.Entries {
		if entry.Record.Command == "make build" {
			t.Fatalf("oversized entry must be omitted, never truncated")
		}
	}
	if len(payload.Entries) == 0 {
		t.Fatalf("small entry should still fit the budget")
	}
}

func TestPruneLowRelevance(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	w.AddCompleted(record("ls", 0, domain.KindNavigation, base))
	w.AddCompleted(record("git push", 1, domain.KindGit, base.Add(time.Second)))

	dropped := w.PruneLowRelevance(0.5)
	if dropped != 1 || w.Len() != 1 {
		t.Fatalf("expected one pruned entry, dropped=%d len=%d", dropped, w.Len())
	}
}

func TestSummaryContents(t *testing.T) {
	w := NewWindow(20, 4000)
	base := time.Now()
	w.AddCompleted(record("git push", 1, domain.KindGit, base))
	w.MarkTask("ship release")

	summary := w.Summary()
	if !strings.Contains(summary, "Recent errors: 1") {
		t.Fatalf("summary missing error count: %q", summary)
	}
	if !strings.Contains(summary, "ship release") {
		t.Fatalf("summary missing task: %q", summary)
	}
	if !strings.Contains(summary, "git") {
		t.Fatalf("summary missing frequent verb: %q", summary)
	}
}
