package ledger

import (
	"sort"

	"github.com/google/uuid"
)

// RecordPendingAdd remembers that consumer added count uses of key during its session.
func (l *Ledger) RecordPendingAdd(consumer uuid.UUID, key string, count int) {
	record(l.pendingAdd, consumer, key, count)
}

// RecordPendingRemove remembers that consumer asked to remove count uses of key during its
// session.
func (l *Ledger) RecordPendingRemove(consumer uuid.UUID, key string, count int) {
	record(l.pendingRemove, consumer, key, count)
}

// PendingAdd returns the uncommitted adds of key by consumer.
func (l *Ledger) PendingAdd(consumer uuid.UUID, key string) int {
	return l.pendingAdd[consumer][key]
}

// PendingRemove returns the uncommitted removes of key by consumer.
func (l *Ledger) PendingRemove(consumer uuid.UUID, key string) int {
	return l.pendingRemove[consumer][key]
}

// HasPendingAdd reports whether any open session added uses of key.
func (l *Ledger) HasPendingAdd(key string) bool {
	for _, keys := range l.pendingAdd {
		if keys[key] > 0 {
			return true
		}
	}
	return false
}

// TakePendingAdds removes and returns the pending adds of consumer.
func (l *Ledger) TakePendingAdds(consumer uuid.UUID) []Entry {
	return take(l.pendingAdd, consumer)
}

// TakePendingRemoves removes and returns the pending removes of consumer.
func (l *Ledger) TakePendingRemoves(consumer uuid.UUID) []Entry {
	return take(l.pendingRemove, consumer)
}

// PendingConsumers returns every consumer with an open session, sorted.
func (l *Ledger) PendingConsumers() []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	for id := range l.pendingAdd {
		seen[id] = true
	}
	for id := range l.pendingRemove {
		seen[id] = true
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Entry is one pending (key, count) pair.
type Entry struct {
	Key   string
	Count int
}

func record(table map[uuid.UUID]map[string]int, consumer uuid.UUID, key string, count int) {
	if count <= 0 {
		return
	}
	keys := table[consumer]
	if keys == nil {
		keys = map[string]int{}
		table[consumer] = keys
	}
	keys[key] += count
}

func take(table map[uuid.UUID]map[string]int, consumer uuid.UUID) []Entry {
	keys := table[consumer]
	delete(table, consumer)
	out := make([]Entry, 0, len(keys))
	for k, n := range keys {
		out = append(out, Entry{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
