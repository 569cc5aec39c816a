// Package cache holds the per-session, per-entity in-memory collections. Each
// collection is the authoritative view of one table for its session, ordered
// by a stable sort key and reconciled strictly by identity.
package cache

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Entity is anything a collection can hold.
type Entity interface {
	Key() string
}

// Compare orders two entities. Negative means a sorts before b.
type Compare[T Entity] func(a, b T) int

var collator = collate.New(language.Und, collate.IgnoreCase)

// ByName orders by a case-normalized name, falling back to the identity so
// equal names keep a stable order.
func ByName[T Entity](name func(T) string) Compare[T] {
	return func(a, b T) int {
		if c := collator.CompareString(name(a), name(b)); c != 0 {
			return c
		}
		return compareKeys(a.Key(), b.Key())
	}
}

// ByTime orders by a timestamp ascending, identity as tiebreak.
func ByTime[T Entity](at func(T) time.Time) Compare[T] {
	return func(a, b T) int {
		ta, tb := at(a), at(b)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
		return compareKeys(a.Key(), b.Key())
	}
}

func compareKeys(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Collection is an ordered in-memory view of one entity table. All methods
// are safe for concurrent use; reconciliation happens by identity, never by
// positional index.
type Collection[T Entity] struct {
	mu    sync.RWMutex
	items []T
	cmp   Compare[T]
}

// New constructs an empty collection with the given order.
func New[T Entity](cmp Compare[T]) *Collection[T] {
	return &Collection[T]{cmp: cmp}
}

// Replace swaps the whole collection for a fresh load.
func (c *Collection[T]) Replace(items []T) {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return c.cmp(sorted[i], sorted[j]) < 0 })
	c.mu.Lock()
	c.items = sorted
	c.mu.Unlock()
}

// Snapshot returns a copy of the current ordered view. Never blocks on I/O.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Get looks up an entity by identity.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.Key() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of cached entities.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Upsert replaces the entity with the same identity, or inserts it at its
// sorted position. Only the affected position moves; an insert carrying an
// already-known identity degrades to an update, which makes replaying the
// same change-stream event a no-op.
func (c *Collection[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(item.Key())
	idx := sort.Search(len(c.items), func(i int) bool { return c.cmp(c.items[i], item) >= 0 })
	c.items = append(c.items, item)
	copy(c.items[idx+1:], c.items[idx:])
	c.items[idx] = item
}

// Remove deletes the entity with the given identity. Removing an unknown
// identity is a no-op.
func (c *Collection[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Collection[T]) removeLocked(id string) bool {
	for i, item := range c.items {
		if item.Key() == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}
