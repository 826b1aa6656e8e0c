package sstable

import (
	"fmt"
	"math"

	"github.com/cairnkv/cairn/internal/bufferpool"
	"github.com/cairnkv/cairn/internal/kv"
	"github.com/cairnkv/cairn/internal/vfs"
)

// maxDescentDepth bounds the root-to-leaf walk so a corrupt child pointer
// cycle cannot hang a lookup. A tree of this depth would hold far more
// pages than a run can ever contain.
const maxDescentDepth = 64

// Reader serves point lookups and range scans over one immutable run.
//
// Page reads go through the shared buffer pool; on a miss the loader opens
// the run file, reads exactly one page, and closes it again. File handles
// are never held between operations.
type Reader struct {
	fs   vfs.FS
	dir  string
	name string
	pool *bufferpool.Pool[*Page]
}

// NewReader creates a reader for the run file name inside dir.
func NewReader(fs vfs.FS, dir, name string, pool *bufferpool.Pool[*Page]) *Reader {
	return &Reader{fs: fs, dir: dir, name: name, pool: pool}
}

// Name returns the run's file name.
func (r *Reader) Name() string { return r.name }

// Path returns the run's full path.
func (r *Reader) Path() string { return join(r.dir, r.name) }

// NumPages returns the number of pages in the run. Run files whose size is
// not a whole number of pages are corrupt.
func (r *Reader) NumPages() (int, error) {
	info, err := r.fs.Stat(r.Path())
	if err != nil {
		return 0, fmt.Errorf("sstable: stat %s: %w", r.name, err)
	}
	if info.Size()%PageSize != 0 {
		return 0, fmt.Errorf("%w: %s size %d is not page-aligned", ErrCorruptPage, r.name, info.Size())
	}
	return int(info.Size() / PageSize), nil
}

// Page returns page index through the buffer pool.
func (r *Reader) Page(index int) (*Page, error) {
	key := bufferpool.Key{File: r.Path(), Page: index}
	return r.pool.Get(key, func() (*Page, error) {
		return readPageAt(r.fs, r.Path(), index)
	})
}

// readPageAt reads and parses one page with a short-lived file handle.
func readPageAt(fs vfs.FS, path string, index int) (*Page, error) {
	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return readPage(f, path, index)
}

// readPage reads and parses one page from an open handle.
func readPage(f vfs.RandomAccessFile, path string, index int) (*Page, error) {
	buf := make([]byte, PageSize)
	if _, err := f.ReadAt(buf, int64(index)*PageSize); err != nil {
		return nil, fmt.Errorf("sstable: read %s page %d: %w", path, index, err)
	}
	page, err := ParsePage(buf)
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", path, index, err)
	}
	return page, nil
}

// Get descends the tree for key. The second return distinguishes a stored
// pair (tombstones included) from an absent key.
func (r *Reader) Get(key int32) (int32, bool, error) {
	leaf, _, err := r.descend(key)
	if err != nil || leaf == nil {
		return 0, false, err
	}
	v, ok := leaf.Get(key)
	return v, ok, nil
}

// Scan returns every pair with lo <= key <= hi, tombstones included, by
// descending to the leaf covering lo and walking the leaf chain.
func (r *Reader) Scan(lo, hi int32) ([]kv.Pair, error) {
	numPages, err := r.NumPages()
	if err != nil {
		return nil, err
	}
	leaf, index, err := r.descendIn(lo, numPages)
	if err != nil || leaf == nil {
		return nil, err
	}

	var out []kv.Pair
	for {
		out = leaf.ScanRange(lo, hi, out)
		// Leaves are consecutive on disk; keep reading while this leaf
		// ends below the range.
		if leaf.MaxKey() >= hi || index+1 >= numPages {
			return out, nil
		}
		index++
		leaf, err = r.Page(index)
		if err != nil {
			return nil, err
		}
		if leaf.Type != PageLeaf {
			return out, nil
		}
	}
}

// descend walks from the root to the leaf whose key range covers key.
// It returns a nil page for an empty run.
func (r *Reader) descend(key int32) (*Page, int, error) {
	numPages, err := r.NumPages()
	if err != nil {
		return nil, 0, err
	}
	return r.descendIn(key, numPages)
}

func (r *Reader) descendIn(key int32, numPages int) (*Page, int, error) {
	if numPages == 0 {
		return nil, 0, nil
	}
	index := 0
	page, err := r.Page(index)
	if err != nil {
		return nil, 0, err
	}
	for depth := 0; page.Type == PageInternal; depth++ {
		if depth >= maxDescentDepth {
			return nil, 0, fmt.Errorf("%w: %s descent exceeded depth %d", ErrCorruptPage, r.name, maxDescentDepth)
		}
		child := int(page.ChildFor(key))
		if child <= index || child >= numPages {
			return nil, 0, fmt.Errorf("%w: %s page %d child %d out of range", ErrCorruptPage, r.name, index, child)
		}
		index = child
		if page, err = r.Page(index); err != nil {
			return nil, 0, err
		}
	}
	return page, index, nil
}

// BinarySearchGet is the alternative point lookup: it ignores the internal
// levels and binary-searches the leaf region by min/max key, using the
// fact that internal pages sort before every leaf in the file. Results
// match Get exactly.
func (r *Reader) BinarySearchGet(key int32) (int32, bool, error) {
	numPages, err := r.NumPages()
	if err != nil {
		return 0, false, err
	}
	left, right := 0, numPages-1
	for left <= right {
		mid := left + (right-left)/2
		page, err := r.Page(mid)
		if err != nil {
			return 0, false, err
		}
		if page.Type == PageInternal {
			// Internal pages precede all leaves.
			left = mid + 1
			continue
		}
		switch {
		case key < page.MinKey():
			right = mid - 1
		case key > page.MaxKey():
			left = mid + 1
		default:
			v, ok := page.Get(key)
			return v, ok, nil
		}
	}
	return 0, false, nil
}

// FirstLeafIndex returns the page index of the run's first leaf, or -1 for
// an empty run.
func (r *Reader) FirstLeafIndex() (int, error) {
	leaf, index, err := r.descend(math.MinInt32)
	if err != nil || leaf == nil {
		return -1, err
	}
	return index, nil
}

// LeafIterator streams a run's pairs in ascending key order. It holds its
// own file handle and reads pages directly, bypassing the buffer pool:
// compaction touches every page exactly once, so caching them would only
// evict hot lookup pages.
type LeafIterator struct {
	f        vfs.RandomAccessFile
	path     string
	numPages int
	index    int
	entry    int
	page     *Page
	valid    bool
}

// NewLeafIterator opens an iterator positioned at the run's first pair.
// An empty run yields an iterator that is immediately invalid.
func (r *Reader) NewLeafIterator() (*LeafIterator, error) {
	numPages, err := r.NumPages()
	if err != nil {
		return nil, err
	}
	it := &LeafIterator{path: r.Path(), numPages: numPages}
	if numPages == 0 {
		return it, nil
	}

	f, err := r.fs.OpenRandomAccess(r.Path())
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", r.name, err)
	}
	it.f = f

	// Descend for the smallest possible key to locate the first leaf.
	index := 0
	page, err := readPage(f, it.path, index)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	for depth := 0; page.Type == PageInternal; depth++ {
		if depth >= maxDescentDepth {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s descent exceeded depth %d", ErrCorruptPage, r.name, maxDescentDepth)
		}
		child := int(page.ChildFor(math.MinInt32))
		if child <= index || child >= numPages {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s page %d child %d out of range", ErrCorruptPage, r.name, index, child)
		}
		index = child
		if page, err = readPage(f, it.path, index); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	it.index = index
	it.page = page
	it.valid = true
	return it, nil
}

// Valid reports whether the iterator is positioned on a pair.
func (it *LeafIterator) Valid() bool { return it.valid }

// Pair returns the current pair. Only legal while Valid.
func (it *LeafIterator) Pair() kv.Pair { return it.page.Pairs[it.entry] }

// Next advances to the following pair, crossing leaf boundaries by
// incrementing the page index.
func (it *LeafIterator) Next() error {
	if !it.valid {
		return nil
	}
	it.entry++
	if it.entry < it.page.Count() {
		return nil
	}
	it.entry = 0
	it.index++
	if it.index >= it.numPages {
		it.valid = false
		return nil
	}
	page, err := readPage(it.f, it.path, it.index)
	if err != nil {
		it.valid = false
		return err
	}
	if page.Type != PageLeaf {
		it.valid = false
		return nil
	}
	it.page = page
	return nil
}

// Close releases the iterator's file handle.
func (it *LeafIterator) Close() error {
	it.valid = false
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}
