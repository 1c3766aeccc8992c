// Package contextwin assembles the token-budgeted, relevance-ranked context
// shipped with analysis requests.
package contextwin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/infrastructure/terminal"
)

const (
	importantThreshold = 0.8
	importantMax       = 10
	assembleFloor      = 0.5
	entryBaseTokens    = 12 // fixed per-entry overhead in the payload
)

// Window holds the rolling set of scored entries plus the important set that
// survives rolling eviction.
type Window struct {
	mu          sync.Mutex
	maxCommands int
	maxTokens   int
	entries     []domain.ContextEntry
	important   []domain.ContextEntry
	task        string
	startedAt   time.Time
	now         func() time.Time
}

// NewWindow builds a context window bounded to maxCommands rolling entries
// and a default assembly budget of maxTokens.
func NewWindow(maxCommands, maxTokens int) *Window {
	if maxCommands <= 0 {
		maxCommands = 20
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Window{
		maxCommands: maxCommands,
		maxTokens:   maxTokens,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// AddCompleted scores the record and files it into the rolling window, and
// into the important set when the score clears the threshold. The score is
// computed once and never revised.
func (w *Window) AddCompleted(record domain.CommandRecord) domain.ContextEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := domain.ContextEntry{
		Record:    record,
		Relevance: w.score(record),
	}
	w.entries = append(w.entries, entry)
	if len(w.entries) > w.maxCommands {
		w.entries = w.entries[len(w.entries)-w.maxCommands:]
	}
	if entry.Relevance >= importantThreshold {
		w.important = append(w.important, entry)
		if len(w.important) > importantMax {
			w.important = w.important[len(w.important)-importantMax:]
		}
	}
	return entry
}

// score is deterministic: highest matching rule wins, default 0.5.
func (w *Window) score(record domain.CommandRecord) float64 {
	score := 0.5

	if record.IsError() || record.ErrorText != "" {
		score = 0.9
	}

	if kindScore := kindScores[record.Kind]; kindScore > score {
		score = kindScore
	}
	if record.Kind == domain.KindNavigation && score > 0.3 && !record.IsError() && record.ErrorText == "" {
		score = 0.3
	}

	if w.task != "" && sharesKeyword(record.Command, w.task) && score < 0.7 {
		score = 0.7
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

var kindScores = map[domain.CommandKind]float64{
	domain.KindDangerous: 0.9,
	domain.KindGit:       0.8,
	domain.KindDev:       0.8,
	domain.KindPackage:   0.7,
	domain.KindFileOp:    0.6,
	domain.KindNetwork:   0.6,
	domain.KindText:      0.5,
	domain.KindSystem:    0.4,
}

func sharesKeyword(command, task string) bool {
	words := strings.Fields(strings.ToLower(task))
	lower := strings.ToLower(command)
	for _, word := range words {
		if len(word) < 3 {
			continue
		}
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Assemble builds the context payload: important entries first (most recent
// 10), then the most recent entries with score >= 0.5 until the token budget
// is spent. Entries that would exceed the budget are omitted whole. The
// final payload is chronological.
func (w *Window) Assemble(maxTokens int) domain.ContextPayload {
	return w.assemble(maxTokens, false)
}

// AssembleAll ignores the relevance floor, filling the budget with every
// recent entry.
func (w *Window) AssembleAll(maxTokens int) domain.ContextPayload {
	return w.assemble(maxTokens, true)
}

func (w *Window) assemble(maxTokens int, unfiltered bool) domain.ContextPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	if maxTokens <= 0 {
		maxTokens = w.maxTokens
	}

	budget := maxTokens
	seen := map[string]bool{}
	var selected []domain.ContextEntry

	take := func(entry domain.ContextEntry) {
		key := entry.Record.Command + entry.Record.StartedAt.Format(time.RFC3339Nano)
		if seen[key] {
			return
		}
		cost := entryTokens(entry.Record)
		if cost > budget {
			return
		}
		seen[key] = true
		budget -= cost
		selected = append(selected, entry)
	}

	for _, entry := range w.important {
		take(entry)
	}
	for i := len(w.entries) - 1; i >= 0; i-- {
		entry := w.entries[i]
		if !unfiltered && entry.Relevance < assembleFloor {
			continue
		}
		take(entry)
	}

	sortChronological(selected)
	return domain.ContextPayload{
		Entries: selected,
		Summary: w.summaryLocked(),
	}
}

func entryTokens(record domain.CommandRecord) int {
	return entryBaseTokens + (len(record.Command)+len(record.Output)+len(record.ErrorText))/4
}

func sortChronological(entries []domain.ContextEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.StartedAt.Before(entries[j].Record.StartedAt)
	})
}

// MarkTask sets the active task description used by the relevance boost.
func (w *Window) MarkTask(description string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.task = strings.TrimSpace(description)
}

// Task returns the currently marked task.
func (w *Window) Task() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.task
}

// PruneLowRelevance drops rolling entries below floor. The important set is
// untouched.
func (w *Window) PruneLowRelevance(floor float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.entries[:0]
	dropped := 0
	for _, entry := range w.entries {
		if entry.Relevance >= floor {
			kept = append(kept, entry)
		} else {
			dropped++
		}
	}
	w.entries = kept
	return dropped
}

// Important returns a copy of the important set, oldest first.
func (w *Window) Important() []domain.ContextEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.ContextEntry, len(w.important))
	copy(out, w.important)
	return out
}

// Summary emits the short textual description used in prompts: session age,
// recent error count, most frequent high-relevance verbs.
func (w *Window) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summaryLocked()
}

func (w *Window) summaryLocked() string {
	errors := 0
	verbs := map[string]int{}
	for _, entry := range w.entries {
		if entry.Record.IsError() {
			errors++
		}
		if entry.Relevance >= assembleFloor {
			verbs[entry.Record.Verb()]++
		}
	}
	stats := domain.HistoryStats{TopVerbs: verbs}
	top := terminal.TopVerbs(stats, 3)

	parts := []string{
		fmt.Sprintf("Session running for %s", humanize.RelTime(w.startedAt, w.now(), "", "")),
		fmt.Sprintf("Recent errors: %d", errors),
	}
	if w.task != "" {
		parts = append(parts, "Task: "+w.task)
	}
	if len(top) > 0 {
		parts = append(parts, "Frequent commands: "+strings.Join(top, ", "))
	}
	return strings.Join(parts, "\n")
}

// Len reports the rolling window size.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Clear resets both the rolling window and the important set.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
	w.important = nil
}
