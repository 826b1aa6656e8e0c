package bufferpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func load(v string) func() (string, error) {
	return func() (string, error) { return v, nil }
}

func TestGetLoadsOnMiss(t *testing.T) {
	p := New[string](4)

	key := Key{File: "a.sst", Page: 0}
	v, err := p.Get(key, load("page0"))
	if err != nil || v != "page0" {
		t.Fatalf("Get = (%q, %v), want (page0, nil)", v, err)
	}
	if p.Misses() != 1 || p.Hits() != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/1", p.Hits(), p.Misses())
	}

	// Second Get must not invoke the loader.
	v, err = p.Get(key, func() (string, error) {
		t.Error("loader invoked on a cached key")
		return "", nil
	})
	if err != nil || v != "page0" {
		t.Fatalf("Get = (%q, %v), want (page0, nil)", v, err)
	}
	if p.Hits() != 1 {
		t.Errorf("hits = %d, want 1", p.Hits())
	}
}

func TestLRUEviction(t *testing.T) {
	p := New[string](3)

	for i := range 3 {
		k := Key{File: "a.sst", Page: i}
		if _, err := p.Get(k, load(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	// Touch page 0 so page 1 becomes the LRU entry.
	if _, err := p.Get(Key{File: "a.sst", Page: 0}, load("p0")); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Inserting a fourth page evicts page 1.
	if _, err := p.Get(Key{File: "a.sst", Page: 3}, load("p3")); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if p.Contains(Key{File: "a.sst", Page: 1}) {
		t.Error("LRU entry survived eviction")
	}
	for _, idx := range []int{0, 2, 3} {
		if !p.Contains(Key{File: "a.sst", Page: idx}) {
			t.Errorf("page %d evicted unexpectedly", idx)
		}
	}
	if p.Len() != 3 {
		t.Errorf("Len = %d, want 3", p.Len())
	}
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	p := New[string](4)
	boom := errors.New("disk gone")

	key := Key{File: "a.sst", Page: 0}
	if _, err := p.Get(key, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Get = %v, want the loader error", err)
	}
	if p.Contains(key) {
		t.Error("failed load left an entry behind")
	}

	// A later Get retries the loader.
	v, err := p.Get(key, load("ok"))
	if err != nil || v != "ok" {
		t.Fatalf("Get after failure = (%q, %v)", v, err)
	}
}

func TestEvictFile(t *testing.T) {
	p := New[string](8)
	for i := range 3 {
		_, _ = p.Get(Key{File: "a.sst", Page: i}, load("a"))
		_, _ = p.Get(Key{File: "b.sst", Page: i}, load("b"))
	}

	p.EvictFile("a.sst")

	for i := range 3 {
		if p.Contains(Key{File: "a.sst", Page: i}) {
			t.Errorf("a.sst page %d survived EvictFile", i)
		}
		if !p.Contains(Key{File: "b.sst", Page: i}) {
			t.Errorf("b.sst page %d was evicted collaterally", i)
		}
	}
}

func TestEvictAll(t *testing.T) {
	p := New[string](8)
	for i := range 5 {
		_, _ = p.Get(Key{File: "a.sst", Page: i}, load("v"))
	}
	p.EvictAll()
	if p.Len() != 0 {
		t.Errorf("Len = %d after EvictAll, want 0", p.Len())
	}
}

func TestSingleLoaderPerKey(t *testing.T) {
	p := New[string](8)
	key := Key{File: "a.sst", Page: 7}

	var loads atomic.Int32
	gate := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.Get(key, func() (string, error) {
				loads.Add(1)
				<-gate
				return "shared", nil
			})
			if err != nil || v != "shared" {
				t.Errorf("Get = (%q, %v)", v, err)
			}
		}()
	}

	close(gate)
	wg.Wait()

	// Concurrent misses on one key must share a single outstanding load.
	// Goroutines that arrive after the load completes hit the cache, so
	// the count can only be 1.
	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times, want 1", n)
	}
}

func TestCapacityFloor(t *testing.T) {
	p := New[string](0)
	if p.Capacity() != 1 {
		t.Errorf("Capacity = %d, want floor of 1", p.Capacity())
	}
	_, _ = p.Get(Key{File: "a", Page: 0}, load("x"))
	_, _ = p.Get(Key{File: "a", Page: 1}, load("y"))
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
}
