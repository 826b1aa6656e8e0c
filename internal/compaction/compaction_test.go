package compaction

import (
	"testing"

	"github.com/cairnkv/cairn/internal/bufferpool"
	"github.com/cairnkv/cairn/internal/kv"
	"github.com/cairnkv/cairn/internal/sstable"
	"github.com/cairnkv/cairn/internal/vfs"
)

// writeRun builds a run from pairs and returns a reader over it.
func writeRun(t *testing.T, dir, name string, pairs []kv.Pair) *sstable.Reader {
	t.Helper()
	fs := vfs.Default()
	b, err := sstable.NewBuilder(fs, dir)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	for _, p := range pairs {
		if err := b.Add(p); err != nil {
			t.Fatalf("Add(%+v): %v", p, err)
		}
	}
	if err := b.Finish(name); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	pool := bufferpool.New[*sstable.Page](64)
	return sstable.NewReader(fs, dir, name, pool)
}

// mergeRuns merges older and newer into a fresh run and returns its pairs.
func mergeRuns(t *testing.T, dir string, older, newer *sstable.Reader, removeTombstones bool) []kv.Pair {
	t.Helper()
	fs := vfs.Default()
	b, err := sstable.NewBuilder(fs, dir)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if err := Merge(older, newer, b, removeTombstones); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	name := sstable.RunFileName(1, 999)
	if err := b.Finish(name); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	pool := bufferpool.New[*sstable.Page](64)
	r := sstable.NewReader(fs, dir, name, pool)
	it, err := r.NewLeafIterator()
	if err != nil {
		t.Fatalf("NewLeafIterator: %v", err)
	}
	defer func() { _ = it.Close() }()

	var out []kv.Pair
	for it.Valid() {
		out = append(out, it.Pair())
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	return out
}

func TestMergeDisjoint(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", []kv.Pair{
		{Key: 1, Value: 10}, {Key: 3, Value: 30},
	})
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 2, Value: 20}, {Key: 4, Value: 40},
	})

	got := mergeRuns(t, dir, older, newer, false)
	want := []kv.Pair{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 3, Value: 30}, {Key: 4, Value: 40}}
	if len(got) != len(want) {
		t.Fatalf("merged %d pairs, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMergeNewerWinsOnEqualKeys(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", []kv.Pair{
		{Key: 1, Value: 100}, {Key: 2, Value: 200}, {Key: 3, Value: 300},
	})
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 2, Value: 999},
	})

	got := mergeRuns(t, dir, older, newer, false)
	if len(got) != 3 {
		t.Fatalf("merged %d pairs, want 3: %v", len(got), got)
	}
	if got[1] != (kv.Pair{Key: 2, Value: 999}) {
		t.Errorf("key 2 = %+v, want the newer run's value 999", got[1])
	}
}

func TestMergeKeepsTombstonesAboveTerminal(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", []kv.Pair{
		{Key: 1, Value: 100}, {Key: 2, Value: 200},
	})
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 1, Value: kv.Tombstone},
	})

	got := mergeRuns(t, dir, older, newer, false)
	if len(got) != 2 {
		t.Fatalf("merged %d pairs, want 2: %v", len(got), got)
	}
	if !got[0].IsTombstone() || got[0].Key != 1 {
		t.Errorf("pair 0 = %+v, want a tombstone for key 1", got[0])
	}
}

func TestMergeDropsTombstonesAtTerminal(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", []kv.Pair{
		{Key: 1, Value: 100}, {Key: 2, Value: 200},
	})
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 1, Value: kv.Tombstone}, {Key: 3, Value: kv.Tombstone},
	})

	got := mergeRuns(t, dir, older, newer, true)
	if len(got) != 1 {
		t.Fatalf("merged %d pairs, want 1: %v", len(got), got)
	}
	if got[0] != (kv.Pair{Key: 2, Value: 200}) {
		t.Errorf("pair 0 = %+v, want (2, 200)", got[0])
	}
}

func TestMergeAllTombstonesYieldsEmptyRun(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", []kv.Pair{
		{Key: 1, Value: kv.Tombstone},
	})
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 2, Value: kv.Tombstone},
	})

	got := mergeRuns(t, dir, older, newer, true)
	if len(got) != 0 {
		t.Fatalf("merged %d pairs, want an empty run: %v", len(got), got)
	}
}

func TestMergeWithEmptyRun(t *testing.T) {
	dir := t.TempDir()
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", nil)
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", []kv.Pair{
		{Key: 5, Value: 50},
	})

	got := mergeRuns(t, dir, older, newer, false)
	if len(got) != 1 || got[0] != (kv.Pair{Key: 5, Value: 50}) {
		t.Fatalf("merge with empty run = %v, want [(5, 50)]", got)
	}
}

func TestMergeLargeRunsSplitLeaves(t *testing.T) {
	dir := t.TempDir()

	// Two interleaved runs whose union exceeds one leaf.
	var a, b []kv.Pair
	for i := int32(0); i < sstable.MaxEntries; i++ {
		a = append(a, kv.Pair{Key: i * 2, Value: i})
		b = append(b, kv.Pair{Key: i*2 + 1, Value: -i})
	}
	older := writeRun(t, dir, "sst_0000_0000000000000001.sst", a)
	newer := writeRun(t, dir, "sst_0000_0000000000000002.sst", b)

	got := mergeRuns(t, dir, older, newer, false)
	if len(got) != 2*sstable.MaxEntries {
		t.Fatalf("merged %d pairs, want %d", len(got), 2*sstable.MaxEntries)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Key <= got[i-1].Key {
			t.Fatalf("merged keys not strictly increasing at %d: %d after %d",
				i, got[i].Key, got[i-1].Key)
		}
	}
}
