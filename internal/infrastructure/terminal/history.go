package terminal

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
)

// History records finalized commands in chronological order, capped at a
// maximum length with oldest-first eviction.
type History struct {
	mu      sync.Mutex
	max     int
	records []domain.CommandRecord
	pending *domain.CommandRecord
	now     func() time.Time
}

// NewHistory builds a history retaining at most max finalized records.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1000
	}
	return &History{max: max, now: time.Now}
}

// Begin opens a pending record. Blank input is silently ignored.
func (h *History) Begin(command, directory string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = &domain.CommandRecord{
		Command:   command,
		Directory: directory,
		StartedAt: h.now(),
		Kind:      Classify(command),
	}
}

// End finalizes the pending record. No-op if none pending.
func (h *History) End(exitCode int, output, errorExcerpt string) (domain.CommandRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return domain.CommandRecord{}, false
	}
	rec := *h.pending
	rec.EndedAt = h.now()
	rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
	rec.ExitCode = exitCode
	rec.Output = output
	rec.ErrorText = errorExcerpt
	h.pending = nil

	h.records = append(h.records, rec)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
	return rec, true
}

// Cancel discards the pending record without finalizing it.
func (h *History) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
}

// Pending reports whether a command is currently in flight.
func (h *History) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Recent returns the last n finalized records in chronological order.
func (h *History) Recent(n int) []domain.CommandRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		return nil
	}
	slice := h.records
	if n < len(slice) {
		slice = slice[len(slice)-n:]
	}
	out := make([]domain.CommandRecord, len(slice))
	copy(out, slice)
	return out
}

// All returns every finalized record in chronological order.
func (h *History) All() []domain.CommandRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.CommandRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Errors returns all records with a non-zero exit code.
func (h *History) Errors() []domain.CommandRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.CommandRecord
	for _, rec := range h.records {
		if rec.IsError() {
			out = append(out, rec)
		}
	}
	return out
}

// Len reports the number of finalized records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Clear drops all records and any pending command.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
	h.pending = nil
}

// Stats summarizes the history for session reporting.
func (h *History) Stats() domain.HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := domain.HistoryStats{TopVerbs: map[string]int{}}
	if len(h.records) == 0 {
		return stats
	}
	var total time.Duration
	for _, rec := range h.records {
		stats.Total++
		if rec.IsError() {
			stats.Errors++
		}
		total += rec.Duration
		stats.TopVerbs[rec.Verb()]++
	}
	stats.ErrorRate = float64(stats.Errors) / float64(stats.Total)
	stats.AvgDuration = total / time.Duration(stats.Total)
	return stats
}

// TopVerbs returns the n most frequent command verbs, most frequent first.
func TopVerbs(stats domain.HistoryStats, n int) []string {
	type count struct {
		verb string
		n    int
	}
	counts := make([]count, 0, len(stats.TopVerbs))
	for verb, c := range stats.TopVerbs {
		counts = append(counts, count{verb, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].verb < counts[j].verb
	})
	if n > 0 && n < len(counts) {
		counts = counts[:n]
	}
	verbs := make([]string, len(counts))
	for i, c := range counts {
		verbs[i] = c.verb
	}
	return verbs
}
