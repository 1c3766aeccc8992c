// Package cache stores analysis responses in memory under TTL and a hard
// entry cap.
package cache

import (
	"sync"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

// Memory is a mutex-guarded TTL cache. Entries expire after the TTL and the
// earliest-inserted entry is evicted once the cap is exceeded. Counters feed
// the engine's cacheStats surface.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]domain.CacheEntry
	order      []string // insertion order for earliest-first eviction
	hits       int64
	misses     int64
	evictions  int64
	now        func() time.Time
}

// NewMemory builds a cache with the given TTL and entry cap.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]domain.CacheEntry{},
		now:        time.Now,
	}
}

// Get returns the entry for key unless it is absent or expired. Expired
// entries are removed on access and counted as misses.
func (m *Memory) Get(key string) (domain.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		m.misses++
		return domain.CacheEntry{}, false
	}
	if m.now().Sub(entry.CreatedAt) > m.ttl {
		m.removeLocked(key)
		m.evictions++
		m.misses++
		return domain.CacheEntry{}, false
	}
	m.hits++
	return entry, true
}

// Set stores the entry, evicting the earliest insertion once the cap is
// exceeded. Empty keys are ignored.
func (m *Memory) Set(entry domain.CacheEntry) {
	if entry.Key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	if _, exists := m.entries[entry.Key]; exists {
		m.removeLocked(entry.Key)
	}
	m.entries[entry.Key] = entry
	m.order = append(m.order, entry.Key)
	for len(m.entries) > m.maxEntries {
		oldest := m.order[0]
		m.removeLocked(oldest)
		m.evictions++
	}
}

func (m *Memory) removeLocked(key string) {
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Sweep drops every expired entry. Called periodically by the engine.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if m.now().Sub(entry.CreatedAt) > m.ttl {
			m.removeLocked(key)
			m.evictions++
			removed++
		}
	}
	return removed
}

// Stats implements ports.CacheStore.
func (m *Memory) Stats() domain.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CacheStats{
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Size:      len(m.entries),
	}
}

// Clear drops all entries and resets counters.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]domain.CacheEntry{}
	m.order = nil
	m.hits, m.misses, m.evictions = 0, 0, 0
}

var _ ports.CacheStore = (*Memory)(nil)
