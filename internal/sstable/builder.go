package sstable

import (
	"fmt"
	"io"

	"github.com/cairnkv/cairn/internal/kv"
	"github.com/cairnkv/cairn/internal/vfs"
)

// Temp file names used while a run is under construction. The engine is
// single-writer, so fixed names inside the store directory are safe; both
// are removed once the final run file is durable.
const (
	tempLeafName     = "leaf.tmp"
	tempInternalName = "internal.tmp"
)

// Builder writes one run from a stream of strictly ascending pairs.
//
// Leaves are packed to MaxEntries and appended to a leaf temp file as the
// stream arrives; each completed leaf records its max key. Finish builds
// the internal levels bottom-up from those max keys, writes them to an
// internal temp file, and concatenates internal-then-leaf into the final
// run path.
type Builder struct {
	fs  vfs.FS
	dir string

	leafFile vfs.WritableFile
	pending  []kv.Pair
	leafMax  []int32
	numPairs int

	lastKey int32
	started bool
	done    bool
}

// NewBuilder starts a run build inside dir, creating the leaf temp file.
func NewBuilder(fs vfs.FS, dir string) (*Builder, error) {
	leafFile, err := fs.Create(join(dir, tempLeafName))
	if err != nil {
		return nil, fmt.Errorf("sstable: create leaf temp: %w", err)
	}
	return &Builder{
		fs:       fs,
		dir:      dir,
		leafFile: leafFile,
		pending:  make([]kv.Pair, 0, MaxEntries),
	}, nil
}

// Add appends one pair. Keys must arrive in strictly ascending order.
func (b *Builder) Add(pair kv.Pair) error {
	if b.started && pair.Key <= b.lastKey {
		return fmt.Errorf("sstable: keys out of order: %d after %d", pair.Key, b.lastKey)
	}
	b.started = true
	b.lastKey = pair.Key
	b.numPairs++

	b.pending = append(b.pending, pair)
	if len(b.pending) == MaxEntries {
		return b.flushLeaf()
	}
	return nil
}

// NumPairs returns the number of pairs added so far.
func (b *Builder) NumPairs() int {
	return b.numPairs
}

// flushLeaf writes the pending pairs as one leaf page and records its max
// key for the internal levels.
func (b *Builder) flushLeaf() error {
	page := &Page{Type: PageLeaf, Pairs: b.pending}
	if _, err := b.leafFile.Write(page.Marshal()); err != nil {
		return fmt.Errorf("sstable: write leaf page: %w", err)
	}
	b.leafMax = append(b.leafMax, b.pending[len(b.pending)-1].Key)
	b.pending = make([]kv.Pair, 0, MaxEntries)
	return nil
}

// Finish drains the remaining pairs, builds the internal levels, and
// assembles the final run file at dir/name. The final file is fsynced
// before Finish returns; temp files are removed. A build that received no
// pairs produces an empty run file.
func (b *Builder) Finish(name string) (err error) {
	if b.done {
		return fmt.Errorf("sstable: builder already finished")
	}
	b.done = true

	finalPath := join(b.dir, name)
	defer func() {
		if err != nil {
			b.removeTemps()
			_ = b.fs.Remove(finalPath)
		}
	}()

	if len(b.pending) > 0 {
		if err := b.flushLeaf(); err != nil {
			return err
		}
	}
	if err := b.leafFile.Close(); err != nil {
		return fmt.Errorf("sstable: close leaf temp: %w", err)
	}

	if err := b.writeInternalPages(); err != nil {
		return err
	}

	out, err := b.fs.Create(finalPath)
	if err != nil {
		return fmt.Errorf("sstable: create run file: %w", err)
	}
	if len(b.leafMax) > 0 {
		if err := appendFile(b.fs, out, join(b.dir, tempInternalName)); err != nil {
			_ = out.Close()
			return err
		}
		if err := appendFile(b.fs, out, join(b.dir, tempLeafName)); err != nil {
			_ = out.Close()
			return err
		}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sstable: sync run file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("sstable: close run file: %w", err)
	}

	b.removeTemps()
	return nil
}

// Abandon discards the build and removes its temp files.
func (b *Builder) Abandon() {
	if !b.done {
		b.done = true
		_ = b.leafFile.Close()
	}
	b.removeTemps()
}

func (b *Builder) removeTemps() {
	_ = b.fs.Remove(join(b.dir, tempLeafName))
	_ = b.fs.Remove(join(b.dir, tempInternalName))
}

// writeInternalPages builds the internal levels bottom-up from the leaf
// max keys and emits them root-first to the internal temp file.
//
// Construction: groups of up to MaxEntries max-keys form one internal
// page; each group's last key becomes the group's own max key for the
// level above; repeat until one root remains. Page indices then run level
// by level top-down, left-to-right, with the root at index 0, so child
// pointers are assigned by a single counter walked in emit order, and the
// bottom internal level's children come out as the leaf page indices.
func (b *Builder) writeInternalPages() error {
	if len(b.leafMax) == 0 {
		return nil
	}

	// levels[0] is the level directly above the leaves; the last level is
	// the root. Each level is a list of per-page max-key groups.
	var levels [][][]int32
	maxKeys := b.leafMax
	for len(maxKeys) > 0 {
		var level [][]int32
		var next []int32
		for i := 0; i < len(maxKeys); i += MaxEntries {
			end := min(i+MaxEntries, len(maxKeys))
			group := maxKeys[i:end]
			level = append(level, group)
			next = append(next, group[len(group)-1])
		}
		levels = append(levels, level)
		maxKeys = next
		if len(maxKeys) == 1 {
			break
		}
	}

	out, err := b.fs.Create(join(b.dir, tempInternalName))
	if err != nil {
		return fmt.Errorf("sstable: create internal temp: %w", err)
	}

	// Emit root-first. The child counter starts past page 0 (the root)
	// and increments in BFS order, matching the final page numbering.
	child := int32(0)
	for li := len(levels) - 1; li >= 0; li-- {
		for _, group := range levels[li] {
			page := &Page{Type: PageInternal, Pairs: make([]kv.Pair, len(group))}
			for i, maxKey := range group {
				child++
				page.Pairs[i] = kv.Pair{Key: maxKey, Value: child}
			}
			page.RightmostChild = child
			if _, err := out.Write(page.Marshal()); err != nil {
				_ = out.Close()
				return fmt.Errorf("sstable: write internal page: %w", err)
			}
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("sstable: close internal temp: %w", err)
	}
	return nil
}

// appendFile copies the whole of src onto the end of dst.
func appendFile(fs vfs.FS, dst vfs.WritableFile, src string) error {
	in, err := fs.OpenRandomAccess(src)
	if err != nil {
		return fmt.Errorf("sstable: open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()
	if _, err := io.Copy(dst, io.NewSectionReader(in, 0, in.Size())); err != nil {
		return fmt.Errorf("sstable: concatenate %s: %w", src, err)
	}
	return nil
}

// join builds dir/name without pulling in path handling for the empty-dir
// case used by tests.
func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
