// Package compaction implements the two-run merge at the heart of the
// engine's leveled compaction.
//
// A merge consumes two runs of the same level through leaf iterators and
// streams their union into a builder for the next level. On duplicate keys
// the newer run wins; a missing tombstone while older runs still exist
// would resurrect a deleted key, so tombstones are dropped only when the
// caller knows the output lands beyond the deepest existing level.
package compaction

import (
	"fmt"

	"github.com/cairnkv/cairn/internal/kv"
	"github.com/cairnkv/cairn/internal/sstable"
)

// Merge streams the contents of older and newer into out. Pairs are
// consumed in ascending key order; on equal keys the newer run's pair is
// kept and the older one discarded. When removeTombstones is set, deletion
// markers are dropped instead of written.
//
// Merge only adds pairs: finishing or abandoning the builder is the
// caller's responsibility, so a failed merge leaves no partial output
// behind once the builder is abandoned.
func Merge(older, newer *sstable.Reader, out *sstable.Builder, removeTombstones bool) error {
	a, err := older.NewLeafIterator()
	if err != nil {
		return fmt.Errorf("compaction: open %s: %w", older.Name(), err)
	}
	defer func() { _ = a.Close() }()

	b, err := newer.NewLeafIterator()
	if err != nil {
		return fmt.Errorf("compaction: open %s: %w", newer.Name(), err)
	}
	defer func() { _ = b.Close() }()

	emit := func(pair kv.Pair) error {
		if removeTombstones && pair.IsTombstone() {
			return nil
		}
		return out.Add(pair)
	}

	for a.Valid() && b.Valid() {
		ka, kb := a.Pair().Key, b.Pair().Key
		switch {
		case ka < kb:
			if err := emit(a.Pair()); err != nil {
				return err
			}
			if err := a.Next(); err != nil {
				return err
			}
		case kb < ka:
			if err := emit(b.Pair()); err != nil {
				return err
			}
			if err := b.Next(); err != nil {
				return err
			}
		default:
			// Same key in both runs: the newer run's pair shadows the
			// older one.
			if err := emit(b.Pair()); err != nil {
				return err
			}
			if err := a.Next(); err != nil {
				return err
			}
			if err := b.Next(); err != nil {
				return err
			}
		}
	}

	if err := drain(a, emit); err != nil {
		return err
	}
	return drain(b, emit)
}

// drain copies the remainder of one iterator into emit.
func drain(it *sstable.LeafIterator, emit func(kv.Pair) error) error {
	for it.Valid() {
		if err := emit(it.Pair()); err != nil {
			return err
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}
