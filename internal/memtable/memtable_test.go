package memtable

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/cairnkv/cairn/internal/kv"
)

func TestPutGet(t *testing.T) {
	m := New(16)

	m.Put(1, 100)
	m.Put(2, 200)

	if v, ok := m.Get(1); !ok || v != 100 {
		t.Errorf("Get(1) = (%d, %v), want (100, true)", v, ok)
	}
	if v, ok := m.Get(2); !ok || v != 200 {
		t.Errorf("Get(2) = (%d, %v), want (200, true)", v, ok)
	}
	if _, ok := m.Get(3); ok {
		t.Error("Get(3) found a key that was never inserted")
	}
}

func TestOverwriteDoesNotGrow(t *testing.T) {
	m := New(16)

	m.Put(5, 1)
	m.Put(5, 2)
	m.Put(5, 3)

	if v, _ := m.Get(5); v != 3 {
		t.Errorf("Get(5) = %d, want 3 (last write wins)", v)
	}
	if m.Size() != 1 {
		t.Errorf("Size = %d after three puts of one key, want 1", m.Size())
	}
}

func TestTombstoneIsVisible(t *testing.T) {
	m := New(16)

	m.Put(7, kv.Tombstone)

	v, ok := m.Get(7)
	if !ok {
		t.Fatal("Get(7) missed a stored tombstone")
	}
	if v != kv.Tombstone {
		t.Errorf("Get(7) = %d, want the tombstone value", v)
	}

	// Scans return tombstones; filtering is the coordinator's job.
	got := m.Scan(0, 10)
	if len(got) != 1 || !got[0].IsTombstone() {
		t.Errorf("Scan = %v, want one tombstone entry", got)
	}
}

func TestScanInclusiveBounds(t *testing.T) {
	m := New(64)
	for k := int32(1); k <= 9; k++ {
		m.Put(k, k*10)
	}

	tests := []struct {
		lo, hi int32
		want   []int32
	}{
		{1, 9, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{3, 5, []int32{3, 4, 5}},
		{5, 5, []int32{5}},
		{0, 2, []int32{1, 2}},
		{8, 20, []int32{8, 9}},
		{10, 20, nil},
		{6, 3, nil},
	}
	for _, tt := range tests {
		got := m.Scan(tt.lo, tt.hi)
		if len(got) != len(tt.want) {
			t.Errorf("Scan(%d, %d) returned %d entries, want %d", tt.lo, tt.hi, len(got), len(tt.want))
			continue
		}
		for i, p := range got {
			if p.Key != tt.want[i] || p.Value != tt.want[i]*10 {
				t.Errorf("Scan(%d, %d)[%d] = %+v, want key %d", tt.lo, tt.hi, i, p, tt.want[i])
			}
		}
	}
}

func TestCapacityAndClear(t *testing.T) {
	m := New(3)

	m.Put(1, 1)
	m.Put(2, 2)
	if m.IsFull() {
		t.Error("IsFull before reaching capacity")
	}
	m.Put(3, 3)
	if !m.IsFull() {
		t.Error("not full at capacity")
	}

	m.Clear()
	if m.Size() != 0 || m.IsFull() {
		t.Errorf("after Clear: Size = %d, IsFull = %v", m.Size(), m.IsFull())
	}
	if _, ok := m.Get(1); ok {
		t.Error("Get found a key after Clear")
	}
}

func TestExtremeKeys(t *testing.T) {
	m := New(8)
	m.Put(math.MinInt32, 1)
	m.Put(math.MaxInt32, 2)
	m.Put(0, 3)

	if v, ok := m.Get(math.MinInt32); !ok || v != 1 {
		t.Errorf("Get(MinInt32) = (%d, %v)", v, ok)
	}
	if v, ok := m.Get(math.MaxInt32); !ok || v != 2 {
		t.Errorf("Get(MaxInt32) = (%d, %v)", v, ok)
	}

	all := m.All()
	if len(all) != 3 {
		t.Fatalf("All returned %d entries, want 3", len(all))
	}
	if all[0].Key != math.MinInt32 || all[2].Key != math.MaxInt32 {
		t.Errorf("All not sorted: %v", all)
	}
}

func TestRandomInsertsStaySorted(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := New(1 << 16)
	model := make(map[int32]int32)

	for range 5000 {
		k := int32(rng.Intn(2000) - 1000)
		v := int32(rng.Intn(1 << 20))
		m.Put(k, v)
		model[k] = v
	}

	all := m.All()
	if len(all) != len(model) {
		t.Fatalf("All returned %d entries, model has %d", len(all), len(model))
	}
	if !sort.SliceIsSorted(all, func(i, j int) bool { return all[i].Key < all[j].Key }) {
		t.Fatal("All is not sorted by key")
	}
	for _, p := range all {
		if model[p.Key] != p.Value {
			t.Fatalf("key %d = %d, model has %d", p.Key, p.Value, model[p.Key])
		}
	}
	if m.Size() != len(model) {
		t.Errorf("Size = %d, want %d", m.Size(), len(model))
	}
}

func TestAVLHeightStaysLogarithmic(t *testing.T) {
	m := New(1 << 20)
	// Ascending inserts are the degenerate case for an unbalanced BST.
	for k := int32(0); k < 10000; k++ {
		m.Put(k, k)
	}
	h := height(m.tree.root)
	// ceil(1.44 * log2(10001)) is ~20; anything near the node count means
	// rotations are broken.
	if h > 25 {
		t.Errorf("tree height %d after 10000 ascending inserts", h)
	}
}
