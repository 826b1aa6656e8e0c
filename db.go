package cairn

// db.go implements the coordinator that sequences writes through the
// memtable, the run writer, and the compactor, and fans reads out across
// the memtable and the run list.

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cairnkv/cairn/internal/bufferpool"
	"github.com/cairnkv/cairn/internal/compaction"
	"github.com/cairnkv/cairn/internal/filter"
	"github.com/cairnkv/cairn/internal/kv"
	"github.com/cairnkv/cairn/internal/logging"
	"github.com/cairnkv/cairn/internal/memtable"
	"github.com/cairnkv/cairn/internal/sstable"
	"github.com/cairnkv/cairn/internal/vfs"
)

// Pair is one key/value result returned by Scan.
type Pair struct {
	Key   int32
	Value int32
}

// run is one immutable on-disk sorted file and its Bloom filter.
type run struct {
	name   string
	level  int
	ts     int64
	filter *filter.Filter
	reader *sstable.Reader
}

// DB is an open store. All methods are safe for concurrent use; mutating
// operations serialize on one exclusive lock covering the memtable, the
// run list, and the buffer pool.
type DB struct {
	mu   sync.Mutex
	opts *Options
	dir  string
	fs   vfs.FS
	log  logging.Logger

	mem  *memtable.MemTable
	runs []*run // oldest first, newest last
	pool *bufferpool.Pool[*sstable.Page]

	stats  Statistics
	lastTS int64
	open   bool
}

// Open opens the store directory at dir, creating it if missing. Existing
// runs are enumerated, paired with their filter sidecars, sanity-checked,
// and ordered by recency.
func Open(dir string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.clone()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	fs := opts.FS
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cairn: create store directory: %w", err)
	}

	db := &DB{
		opts: opts,
		dir:  dir,
		fs:   fs,
		log:  opts.Logger,
		mem:  memtable.New(opts.maxPairs()),
		pool: bufferpool.New[*sstable.Page](opts.BufferPoolPages),
	}

	if err := db.loadRuns(); err != nil {
		return nil, err
	}
	db.open = true
	db.log.Infof("[db] opened %s: %d runs, memtable capacity %d pairs",
		dir, len(db.runs), db.mem.MaxPairs())
	return db, nil
}

// loadRuns enumerates dir, pairs .sst files with their .filter sidecars,
// validates both, and rebuilds the run list ordered oldest to newest.
func (db *DB) loadRuns() error {
	names, err := db.fs.ListDir(db.dir)
	if err != nil {
		return fmt.Errorf("cairn: list store directory: %w", err)
	}

	for _, name := range names {
		level, ts, ok := sstable.ParseRunFileName(name)
		if !ok {
			continue
		}
		r := &run{
			name:   name,
			level:  level,
			ts:     ts,
			reader: sstable.NewReader(db.fs, db.dir, name, db.pool),
		}
		if err := db.checkRunFile(r); err != nil {
			return err
		}
		raw, err := readFileAll(db.fs, db.runPath(sstable.FilterFileName(name)))
		if err != nil {
			return fmt.Errorf("cairn: read filter for %s: %w", name, err)
		}
		if r.filter, err = filter.Unmarshal(raw); err != nil {
			return fmt.Errorf("cairn: filter for %s: %w", name, err)
		}
		db.runs = append(db.runs, r)
		if ts > db.lastTS {
			db.lastTS = ts
		}
	}

	// Oldest first: deeper levels hold older compacted data, and within a
	// level a larger timestamp means newer data. Reads walk this list
	// backwards so the first hit for a key is authoritative.
	sort.Slice(db.runs, func(i, j int) bool {
		a, b := db.runs[i], db.runs[j]
		if a.level != b.level {
			return a.level > b.level
		}
		return a.ts < b.ts
	})
	return nil
}

// checkRunFile verifies a resurrected run is page-aligned and, when
// non-empty, carries a parseable root page.
func (db *DB) checkRunFile(r *run) error {
	n, err := r.reader.NumPages()
	if err != nil {
		return fmt.Errorf("cairn: run %s: %w", r.name, err)
	}
	if n > 0 {
		if _, err := r.reader.Page(0); err != nil {
			return fmt.Errorf("cairn: run %s root: %w", r.name, err)
		}
	}
	return nil
}

// Close flushes the memtable if non-empty and marks the store closed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return nil
	}
	if db.mem.Size() > 0 {
		if err := db.flushLocked(); err != nil {
			return err
		}
		if err := db.compactLocked(); err != nil {
			return err
		}
	}
	db.open = false
	db.pool.EvictAll()
	db.log.Infof("[db] closed %s", db.dir)
	return nil
}

// Put stores value under key, overwriting any previous value. The value
// kv.Tombstone (MaxInt32) is reserved for deletion markers and rejected.
// A Put that fills the memtable triggers a flush and compaction before it
// returns.
func (db *DB) Put(key, value int32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrClosed
	}
	if value == kv.Tombstone {
		return ErrReservedValue
	}
	return db.putLocked(key, value)
}

// Delete removes key. Deletion writes a tombstone that shadows older runs
// until compaction into the terminal level drops it.
func (db *DB) Delete(key int32) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrClosed
	}
	return db.putLocked(key, kv.Tombstone)
}

func (db *DB) putLocked(key, value int32) error {
	db.mem.Put(key, value)
	db.stats.record(TickerKeysWritten, 1)
	if !db.mem.IsFull() {
		return nil
	}
	if err := db.flushLocked(); err != nil {
		return err
	}
	return db.compactLocked()
}

// Get returns the value stored under key, or ErrNotFound if the key is
// absent or deleted. The memtable is probed first, then each run newest
// to oldest; the first hit (live value or tombstone) is final, because
// no older run can overturn newer data.
func (db *DB) Get(key int32) (int32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return 0, ErrClosed
	}
	db.stats.record(TickerKeysRead, 1)

	if v, ok := db.mem.Get(key); ok {
		if v == kv.Tombstone {
			return 0, ErrNotFound
		}
		db.stats.record(TickerMemtableHit, 1)
		return v, nil
	}

	for i := len(db.runs) - 1; i >= 0; i-- {
		r := db.runs[i]
		if !r.filter.MayContain(key) {
			db.stats.record(TickerBloomUseful, 1)
			continue
		}
		db.stats.record(TickerBloomFullPositive, 1)

		var v int32
		var ok bool
		var err error
		if db.opts.Lookup == LookupBinarySearch {
			v, ok, err = r.reader.BinarySearchGet(key)
		} else {
			v, ok, err = r.reader.Get(key)
		}
		if err != nil {
			return 0, err
		}
		if ok {
			if v == kv.Tombstone {
				return 0, ErrNotFound
			}
			return v, nil
		}
	}
	return 0, ErrNotFound
}

// Scan returns every live pair with lo <= key <= hi, sorted by key
// ascending. Results merge the memtable and all runs with newest-wins
// deduplication; tombstoned keys are omitted. The walk stops early once
// every distinct key in the range has been decided.
func (db *DB) Scan(lo, hi int32) ([]Pair, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return nil, ErrClosed
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lo, hi)
	}

	maxDistinct := int64(hi) - int64(lo) + 1
	seen := make(map[int32]struct{})
	var out []Pair

	collect := func(pairs []kv.Pair) {
		for _, p := range pairs {
			if _, dup := seen[p.Key]; dup {
				continue
			}
			seen[p.Key] = struct{}{}
			if !p.IsTombstone() {
				out = append(out, Pair{Key: p.Key, Value: p.Value})
			}
		}
	}

	collect(db.mem.Scan(lo, hi))
	for i := len(db.runs) - 1; i >= 0 && int64(len(seen)) < maxDistinct; i-- {
		pairs, err := db.runs[i].reader.Scan(lo, hi)
		if err != nil {
			return nil, err
		}
		collect(pairs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Flush forces the memtable to disk as a level-0 run and compacts. A
// flush of an empty memtable is a no-op.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrClosed
	}
	if db.mem.Size() == 0 {
		return nil
	}
	if err := db.flushLocked(); err != nil {
		return err
	}
	return db.compactLocked()
}

// Compact merges the two newest runs while they share a level.
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrClosed
	}
	return db.compactLocked()
}

// Statistics returns the store's counters. Buffer pool tickers are
// refreshed from the pool on each call.
func (db *DB) Statistics() *Statistics {
	db.stats.tickers[TickerPoolHits].Store(db.pool.Hits())
	db.stats.tickers[TickerPoolMisses].Store(db.pool.Misses())
	return &db.stats
}

// Dir returns the store directory.
func (db *DB) Dir() string { return db.dir }

// flushLocked freezes the memtable, writes it as a level-0 run with a
// Bloom filter sidecar, publishes the run, and clears the memtable.
func (db *DB) flushLocked() error {
	pairs := db.mem.All()
	if len(pairs) == 0 {
		return nil
	}

	name := sstable.RunFileName(0, db.nextTimestamp())
	b, err := sstable.NewBuilder(db.fs, db.dir)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := b.Add(p); err != nil {
			b.Abandon()
			return err
		}
	}

	// Tombstones are filter members too: a Get must find the tombstone,
	// not fall through to an older value.
	bf := filter.New(db.mem.MaxPairs(), db.opts.BloomBitsPerKey)
	for _, p := range pairs {
		bf.Insert(p.Key)
	}

	if err := b.Finish(name); err != nil {
		return err
	}
	if err := db.publishRun(name, bf); err != nil {
		return err
	}
	db.mem.Clear()
	db.stats.record(TickerFlushes, 1)
	db.log.Infof("[flush] wrote %s (%d pairs)", name, len(pairs))
	return nil
}

// compactLocked merges the two newest runs while they share a level,
// recursing until no two same-level runs remain.
func (db *DB) compactLocked() error {
	for len(db.runs) >= 2 {
		older := db.runs[len(db.runs)-2]
		newer := db.runs[len(db.runs)-1]
		if older.level != newer.level {
			return nil
		}
		if err := db.mergeLocked(older, newer); err != nil {
			return err
		}
	}
	return nil
}

// mergeLocked merges two same-level runs into one run at the next level
// and swaps it into the run list. Tombstones are dropped when the output
// lands beyond the deepest level that existed before the merge.
func (db *DB) mergeLocked(older, newer *run) error {
	if older.level != newer.level {
		return fmt.Errorf("%w: %s vs %s", ErrIncompatibleLevels, older.name, newer.name)
	}

	outputLevel := older.level + 1
	largest := 0
	for _, r := range db.runs {
		if r.level > largest {
			largest = r.level
		}
	}
	removeTombstones := outputLevel > largest

	ts := db.nextTimestamp()
	name := sstable.RunFileName(outputLevel, ts)
	b, err := sstable.NewBuilder(db.fs, db.dir)
	if err != nil {
		return err
	}
	if err := compaction.Merge(older.reader, newer.reader, b, removeTombstones); err != nil {
		b.Abandon()
		return err
	}

	// The merged run's key set is contained in the union of the two
	// source sets, so ORing the filters preserves no-false-negatives.
	// Dropped tombstone keys merely become permitted false positives.
	mf := older.filter.Clone()
	if err := mf.Union(newer.filter); err != nil {
		b.Abandon()
		return err
	}

	if err := b.Finish(name); err != nil {
		return err
	}
	merged := &run{
		name:   name,
		level:  outputLevel,
		ts:     ts,
		filter: mf,
		reader: sstable.NewReader(db.fs, db.dir, name, db.pool),
	}
	if err := db.publishRunFilter(name, mf); err != nil {
		return err
	}

	// Swap the two sources for the merged run, then drop their files and
	// cached pages.
	db.runs = append(db.runs[:len(db.runs)-2], merged)
	for _, old := range []*run{older, newer} {
		db.pool.EvictFile(old.reader.Path())
		if err := db.fs.Remove(old.reader.Path()); err != nil {
			db.log.Warnf("[compact] remove %s: %v", old.name, err)
		}
		if err := db.fs.Remove(db.runPath(sstable.FilterFileName(old.name))); err != nil {
			db.log.Warnf("[compact] remove filter for %s: %v", old.name, err)
		}
	}

	db.stats.record(TickerCompactions, 1)
	db.log.Infof("[compact] merged %s + %s -> %s (tombstones %s)",
		older.name, newer.name, name, map[bool]string{true: "dropped", false: "kept"}[removeTombstones])
	return nil
}

// publishRun writes the filter sidecar, syncs the directory, and appends
// the run to the list. The run becomes visible only after both files are
// durable.
func (db *DB) publishRun(name string, bf *filter.Filter) error {
	if err := db.publishRunFilter(name, bf); err != nil {
		return err
	}
	level, ts, _ := sstable.ParseRunFileName(name)
	db.runs = append(db.runs, &run{
		name:   name,
		level:  level,
		ts:     ts,
		filter: bf,
		reader: sstable.NewReader(db.fs, db.dir, name, db.pool),
	})
	return nil
}

// publishRunFilter writes and syncs a run's filter sidecar, then syncs
// the store directory. On failure the run file is removed so the store
// never lists a run without its filter.
func (db *DB) publishRunFilter(name string, bf *filter.Filter) error {
	filterPath := db.runPath(sstable.FilterFileName(name))
	f, err := db.fs.Create(filterPath)
	if err == nil {
		if _, werr := f.Write(bf.Marshal()); werr != nil {
			err = werr
		} else if serr := f.Sync(); serr != nil {
			err = serr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = db.fs.SyncDir(db.dir)
	}
	if err != nil {
		_ = db.fs.Remove(db.runPath(name))
		_ = db.fs.Remove(filterPath)
		return fmt.Errorf("cairn: write filter for %s: %w", name, err)
	}
	return nil
}

// nextTimestamp returns a strictly increasing microsecond timestamp so
// run filenames never collide within a process.
func (db *DB) nextTimestamp() int64 {
	ts := time.Now().UnixMicro()
	if ts <= db.lastTS {
		ts = db.lastTS + 1
	}
	db.lastTS = ts
	return ts
}

func (db *DB) runPath(name string) string {
	if db.dir == "" {
		return name
	}
	return db.dir + "/" + name
}

// readFileAll reads the whole of path through the vfs.
func readFileAll(fs vfs.FS, path string) ([]byte, error) {
	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, f.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}
