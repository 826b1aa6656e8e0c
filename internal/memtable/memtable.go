// Package memtable implements the in-memory write buffer of the engine.
//
// A MemTable is a bounded sorted map from int32 keys to int32 values backed
// by an AVL tree. Writes land here first; when the table reaches its
// configured capacity the engine freezes it and rewrites the contents as an
// immutable sorted run on disk.
//
// Deletions are recorded as ordinary entries carrying the kv.Tombstone
// value, so a MemTable scan returns tombstones alongside live pairs.
// Filtering them out is the reader's job: while older runs exist, a
// tombstone is load-bearing data.
package memtable

import (
	"math"

	"github.com/cairnkv/cairn/internal/kv"
)

// MemTable is a bounded in-memory sorted map. It is not safe for concurrent
// use; the engine serializes access.
type MemTable struct {
	tree     avlTree
	maxPairs int
	size     int
}

// New creates a MemTable holding at most maxPairs entries.
func New(maxPairs int) *MemTable {
	if maxPairs < 1 {
		maxPairs = 1
	}
	return &MemTable{maxPairs: maxPairs}
}

// Put inserts or overwrites the entry for key. Deleting a key is a Put of
// the kv.Tombstone value.
func (m *MemTable) Put(key, value int32) {
	if m.tree.insert(key, value) {
		m.size++
	}
}

// Get returns the stored value for key. A tombstoned key returns
// (kv.Tombstone, true), distinguishable from a miss.
func (m *MemTable) Get(key int32) (int32, bool) {
	return m.tree.search(key)
}

// Scan returns every entry with lo <= key <= hi in ascending key order,
// tombstones included.
func (m *MemTable) Scan(lo, hi int32) []kv.Pair {
	if lo > hi {
		return nil
	}
	return m.tree.scanRange(lo, hi, nil)
}

// All returns every entry in ascending key order.
func (m *MemTable) All() []kv.Pair {
	return m.tree.scanRange(math.MinInt32, math.MaxInt32, make([]kv.Pair, 0, m.size))
}

// Size returns the number of entries currently stored.
func (m *MemTable) Size() int {
	return m.size
}

// MaxPairs returns the configured capacity in entries.
func (m *MemTable) MaxPairs() int {
	return m.maxPairs
}

// IsFull reports whether the table has reached capacity.
func (m *MemTable) IsFull() bool {
	return m.size >= m.maxPairs
}

// Clear drops every entry.
func (m *MemTable) Clear() {
	m.tree.clear()
	m.size = 0
}
