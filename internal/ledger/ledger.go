// Package ledger tracks how many times each consumer (song) uses each stored asset.
//
// The committed usage table is persisted as a whole after every mutation through a Store.
// Two in-memory pending tables remember, per consumer, the uses added and removed since the
// consumer's editing session began so that the session can later be committed or reverted.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrUnknownAsset     = errors.New("asset has no recorded usage")
	ErrUnknownConsumer  = errors.New("consumer does not use asset")
	ErrInsufficientUses = errors.New("not enough recorded uses")
	ErrInvalidCount     = errors.New("use count must be positive")
)

// Table maps an asset storage key to the use count of every consumer.
type Table map[string]map[uuid.UUID]int

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for key, users := range t {
		cp := make(map[uuid.UUID]int, len(users))
		for id, n := range users {
			cp[id] = n
		}
		out[key] = cp
	}
	return out
}

// Store persists the committed usage table.
type Store interface {
	Load() (Table, error)
	Save(Table) error
}

// Ledger is the usage table plus the pending session tables.
type Ledger struct {
	store         Store
	usage         Table
	pendingAdd    map[uuid.UUID]map[string]int
	pendingRemove map[uuid.UUID]map[string]int
}

// Open loads the committed table from store.
func Open(store Store) (*Ledger, error) {
	usage, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	if usage == nil {
		usage = Table{}
	}
	return &Ledger{
		store:         store,
		usage:         usage,
		pendingAdd:    map[uuid.UUID]map[string]int{},
		pendingRemove: map[uuid.UUID]map[string]int{},
	}, nil
}

// Close releases the store if it holds resources.
func (l *Ledger) Close() error {
	if c, ok := l.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Count returns the uses of key by consumer.
func (l *Ledger) Count(key string, consumer uuid.UUID) int {
	return l.usage[key][consumer]
}

// Total returns the uses of key summed over every consumer.
func (l *Ledger) Total(key string) int {
	total := 0
	for _, n := range l.usage[key] {
		total += n
	}
	return total
}

// Has reports whether key has at least one consumer.
func (l *Ledger) Has(key string) bool {
	return len(l.usage[key]) > 0
}

// Consumers returns a copy of the consumer counts for key.
func (l *Ledger) Consumers(key string) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(l.usage[key]))
	for id, n := range l.usage[key] {
		out[id] = n
	}
	return out
}

// Keys returns every used asset key, sorted.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.usage))
	for k := range l.usage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeysFor returns the keys used by consumer, sorted.
func (l *Ledger) KeysFor(consumer uuid.UUID) []string {
	var keys []string
	for k, users := range l.usage {
		if users[consumer] > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the committed table.
func (l *Ledger) Snapshot() Table {
	return l.usage.Clone()
}

// Encode returns the canonical serialization of the committed table. Map keys are sorted,
// so equal tables always encode to equal bytes.
func (l *Ledger) Encode() ([]byte, error) {
	return json.Marshal(l.usage)
}

// Increment adds count uses of key by consumer and persists the table. On persistence
// failure the in-memory table is left as it was.
func (l *Ledger) Increment(key string, consumer uuid.UUID, count int) error {
	if count <= 0 {
		return ErrInvalidCount
	}
	users := l.usage[key]
	created := users == nil
	if created {
		users = map[uuid.UUID]int{}
		l.usage[key] = users
	}
	prev, had := users[consumer]
	users[consumer] = prev + count

	if err := l.save(); err != nil {
		if had {
			users[consumer] = prev
		} else {
			delete(users, consumer)
		}
		if created {
			delete(l.usage, key)
		}
		return err
	}
	return nil
}

// CheckDecrement reports why Decrement(key, consumer, count) would be refused, if at all.
func (l *Ledger) CheckDecrement(key string, consumer uuid.UUID, count int) error {
	if count <= 0 {
		return ErrInvalidCount
	}
	users, ok := l.usage[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, key)
	}
	n, ok := users[consumer]
	if !ok {
		return fmt.Errorf("%w: %s by %s", ErrUnknownConsumer, key, consumer)
	}
	if n < count {
		return fmt.Errorf("%w: %s by %s has %d, asked %d", ErrInsufficientUses, key, consumer, n, count)
	}
	return nil
}

// Decrement removes count uses of key by consumer and persists the table. A consumer whose
// count reaches zero is dropped, and so is a key left without consumers; unused reports the
// latter. Refused requests leave the ledger untouched.
func (l *Ledger) Decrement(key string, consumer uuid.UUID, count int) (unused bool, err error) {
	if err := l.CheckDecrement(key, consumer, count); err != nil {
		return false, err
	}
	users := l.usage[key]
	prev := users[consumer]
	if prev-count <= 0 {
		delete(users, consumer)
	} else {
		users[consumer] = prev - count
	}
	if len(users) == 0 {
		delete(l.usage, key)
		unused = true
	}

	if err := l.save(); err != nil {
		users[consumer] = prev
		l.usage[key] = users
		return false, err
	}
	return unused, nil
}

// Forget drops every use of key and persists the table.
func (l *Ledger) Forget(key string) error {
	users, ok := l.usage[key]
	if !ok {
		return nil
	}
	delete(l.usage, key)
	if err := l.save(); err != nil {
		l.usage[key] = users
		return err
	}
	return nil
}

func (l *Ledger) save() error {
	if err := l.store.Save(l.usage); err != nil {
		return fmt.Errorf("failed to persist usage: %w", err)
	}
	return nil
}
