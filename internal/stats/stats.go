// Package stats tracks per-staff completed-ticket counters and ranks them.
package stats

import (
	"sort"
	"sync"
)

// Entry is one leaderboard row.
type Entry struct {
	StaffID string `json:"staffId"`
	Count   int    `json:"count"`
}

// Ledger holds completion counts. Entries are created lazily on the first
// completion, never deleted, and only ever incremented. Insertion order is
// kept so that ranking ties break toward the earlier entry (stable sort).
type Ledger struct {
	mu     sync.RWMutex
	counts map[string]int
	order  []string // staffIDs in first-completion order
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		counts: make(map[string]int),
	}
}

// Increment adds one completed ticket for the staff member, creating the
// entry at zero first if absent. Returns the new count.
func (l *Ledger) Increment(staffID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.counts[staffID]; !ok {
		l.order = append(l.order, staffID)
	}
	l.counts[staffID]++
	return l.counts[staffID]
}

// Count returns the completed count for a staff member (zero if absent).
func (l *Ledger) Count(staffID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[staffID]
}

// Rank returns the 1-based leaderboard position of the staff member and the
// total number of entries. ok is false when the staff member has no entry.
func (l *Ledger) Rank(staffID string) (position, total int, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, exists := l.counts[staffID]; !exists {
		return 0, len(l.counts), false
	}
	for i, e := range l.sortedLocked() {
		if e.StaffID == staffID {
			return i + 1, len(l.counts), true
		}
	}
	return 0, len(l.counts), false
}

// Top returns the n highest entries, count descending, earlier insertion
// winning ties. n <= 0 returns all entries.
func (l *Ledger) Top(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.sortedLocked()
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Len returns the number of staff members with at least one completion.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.counts)
}

// sortedLocked builds the ranked slice. Callers hold at least a read lock.
func (l *Ledger) sortedLocked() []Entry {
	entries := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, Entry{StaffID: id, Count: l.counts[id]})
	}
	// Stable: equal counts keep insertion order.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	return entries
}

// Snapshot returns the counts and insertion order for persistence.
func (l *Ledger) Snapshot() (map[string]int, []string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		counts[k] = v
	}
	order := make([]string, len(l.order))
	copy(order, l.order)
	return counts, order
}

// Restore replaces the ledger contents from a persisted snapshot. Entries
// present in counts but missing from order (older snapshots) are appended
// in lexical order so restores stay deterministic.
func (l *Ledger) Restore(counts map[string]int, order []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts = make(map[string]int, len(counts))
	l.order = l.order[:0]
	seen := make(map[string]bool, len(counts))
	for _, id := range order {
		if _, ok := counts[id]; !ok || seen[id] {
			continue
		}
		l.counts[id] = counts[id]
		l.order = append(l.order, id)
		seen[id] = true
	}

	var missing []string
	for id := range counts {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		l.counts[id] = counts[id]
		l.order = append(l.order, id)
	}
}
