package cairn

// options.go implements store configuration.

import (
	"fmt"

	"github.com/cairnkv/cairn/internal/logging"
	"github.com/cairnkv/cairn/internal/sstable"
	"github.com/cairnkv/cairn/internal/vfs"
)

// Logger is the interface for store logging. The zero configuration
// discards all output; see NewStderrLogger.
type Logger = logging.Logger

// NewStderrLogger returns a Logger writing timestamped lines to stderr at
// debug verbosity.
func NewStderrLogger() Logger {
	return logging.NewDefaultLogger(logging.LevelDebug)
}

// LookupMode selects the point-lookup strategy inside a run.
type LookupMode int

const (
	// LookupBTree descends the run's internal pages to the target leaf.
	LookupBTree LookupMode = iota

	// LookupBinarySearch ignores the internal pages and binary-searches
	// the leaves by min/max key. Results are identical to LookupBTree;
	// the mode exists for benchmarking the two access paths.
	LookupBinarySearch
)

// String returns the string representation of the lookup mode.
func (m LookupMode) String() string {
	switch m {
	case LookupBTree:
		return "btree"
	case LookupBinarySearch:
		return "binary_search"
	default:
		return "unknown"
	}
}

// Options configures a store. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// MemtableBytes is the in-memory write buffer budget. The buffer
	// holds MemtableBytes/8 pairs; filling it triggers a flush.
	// Default: 1 MiB (131072 pairs).
	MemtableBytes int

	// BufferPoolPages is the page cache capacity in 4 KiB pages.
	// Default: 2560 (10 MiB).
	BufferPoolPages int

	// BloomBitsPerKey sizes each run's Bloom filter. 8 bits per key
	// yields a false-positive rate around 1%.
	// Default: 8.
	BloomBitsPerKey int

	// Lookup selects the point-lookup strategy inside runs.
	// Default: LookupBTree.
	Lookup LookupMode

	// Logger receives store diagnostics.
	// Default: discard.
	Logger Logger

	// FS is the filesystem the store operates on. Tests substitute a
	// counting implementation.
	// Default: the OS filesystem.
	FS vfs.FS
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		MemtableBytes:   1 << 20,
		BufferPoolPages: 2560,
		BloomBitsPerKey: 8,
		Lookup:          LookupBTree,
		Logger:          logging.Discard,
		FS:              vfs.Default(),
	}
}

// clone returns a copy of o with nil fields replaced by defaults.
func (o *Options) clone() *Options {
	c := *o
	if c.Logger == nil {
		c.Logger = logging.Discard
	}
	if c.FS == nil {
		c.FS = vfs.Default()
	}
	return &c
}

// validate rejects configurations the engine cannot run with.
func (o *Options) validate() error {
	if o.MemtableBytes < 8 {
		return fmt.Errorf("%w: memtable budget %d bytes holds no pairs", ErrInvalidOptions, o.MemtableBytes)
	}
	if o.BufferPoolPages < 1 {
		return fmt.Errorf("%w: buffer pool of %d pages", ErrInvalidOptions, o.BufferPoolPages)
	}
	if o.BloomBitsPerKey < 1 {
		return fmt.Errorf("%w: %d bloom bits per key", ErrInvalidOptions, o.BloomBitsPerKey)
	}
	if o.Lookup != LookupBTree && o.Lookup != LookupBinarySearch {
		return fmt.Errorf("%w: unknown lookup mode %d", ErrInvalidOptions, int(o.Lookup))
	}
	return nil
}

// maxPairs converts the memtable byte budget into a pair capacity.
func (o *Options) maxPairs() int {
	return o.MemtableBytes / 8
}

// PageSize is the fixed on-disk page granularity.
const PageSize = sstable.PageSize

// EntriesPerPage is the entry capacity of one on-disk page.
const EntriesPerPage = sstable.MaxEntries
