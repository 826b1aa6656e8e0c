// Package sstable implements the on-disk run format: immutable sorted
// files laid out as a static B-tree over fixed 4096-byte pages.
//
// A run is the concatenation of internal pages (BFS top-to-bottom,
// left-to-right, root at page index 0) followed by leaf pages in ascending
// key order. Because runs are immutable the tree is built bottom-up in one
// pass (leaves packed to capacity, internal levels built from leaf max
// keys) with no insertion or rotation logic anywhere.
//
// Page byte layout (4096 bytes, little-endian):
//
//	offset 0 : page_type   uint32  { 0 = invalid, 1 = internal, 2 = leaf }
//	offset 4 : entry_count int32
//	offset 8 : entries     entry_count × (key int32, value int32)
//	then       (internal only) rightmost child page index, int32
//	then       zero padding to 4096
//
// Leaf entries hold user values; internal entries hold child page indices
// keyed by the child subtree's max key. The trailing child pointer of an
// internal page covers keys greater than the last separator.
package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cairnkv/cairn/internal/kv"
)

const (
	// PageSize is the fixed on-disk page granularity.
	PageSize = 4096

	// pageHeaderLen covers the page_type and entry_count fields.
	pageHeaderLen = 8

	// MaxEntries is the entry capacity of one page: the 8-byte header,
	// 8 bytes per entry, and room for the trailing child pointer of
	// internal pages.
	MaxEntries = (PageSize - 16) / 8
)

// PageType discriminates the on-disk page kinds.
type PageType uint32

const (
	// PageInvalid marks an unreadable or zeroed page.
	PageInvalid PageType = 0
	// PageInternal marks an index page of separator keys and child pointers.
	PageInternal PageType = 1
	// PageLeaf marks a data page of key/value pairs.
	PageLeaf PageType = 2
)

// String returns the string representation of the page type.
func (t PageType) String() string {
	switch t {
	case PageInvalid:
		return "invalid"
	case PageInternal:
		return "internal"
	case PageLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("PageType(%d)", uint32(t))
	}
}

// ErrCorruptPage is returned when a page image fails to parse.
var ErrCorruptPage = errors.New("sstable: corrupt page")

// Page is the parsed form of one on-disk page. Pages are immutable once
// written; cached copies in the buffer pool are shared read-only.
type Page struct {
	Type  PageType
	Pairs []kv.Pair

	// RightmostChild is the trailing child pointer of internal pages. It
	// mirrors the last entry's child so descents past the last separator
	// land in the rightmost subtree.
	RightmostChild int32
}

// Count returns the number of entries in the page.
func (p *Page) Count() int {
	return len(p.Pairs)
}

// MinKey returns the smallest key in the page.
func (p *Page) MinKey() int32 {
	return p.Pairs[0].Key
}

// MaxKey returns the largest key in the page.
func (p *Page) MaxKey() int32 {
	return p.Pairs[len(p.Pairs)-1].Key
}

// Get binary-searches a leaf page for key.
func (p *Page) Get(key int32) (int32, bool) {
	i := sort.Search(len(p.Pairs), func(i int) bool { return p.Pairs[i].Key >= key })
	if i < len(p.Pairs) && p.Pairs[i].Key == key {
		return p.Pairs[i].Value, true
	}
	return 0, false
}

// ScanRange appends the leaf entries with lo <= key <= hi to out.
func (p *Page) ScanRange(lo, hi int32, out []kv.Pair) []kv.Pair {
	i := sort.Search(len(p.Pairs), func(i int) bool { return p.Pairs[i].Key >= lo })
	for ; i < len(p.Pairs) && p.Pairs[i].Key <= hi; i++ {
		out = append(out, p.Pairs[i])
	}
	return out
}

// ChildFor returns the child page index to descend into for key: the
// child of the first separator >= key, or the rightmost child when key is
// greater than every separator.
func (p *Page) ChildFor(key int32) int32 {
	i := sort.Search(len(p.Pairs), func(i int) bool { return p.Pairs[i].Key >= key })
	if i < len(p.Pairs) {
		return p.Pairs[i].Value
	}
	return p.RightmostChild
}

// Marshal encodes the page into a PageSize-byte image.
func (p *Page) Marshal() []byte {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Type))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Pairs)))
	off := pageHeaderLen
	for _, pair := range p.Pairs {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(pair.Key))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(pair.Value))
		off += 8
	}
	if p.Type == PageInternal {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(p.RightmostChild))
	}
	return buf
}

// ParsePage decodes a PageSize-byte image. Images with an unknown type,
// an impossible entry count, or the wrong length fail with ErrCorruptPage.
func ParsePage(buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("%w: image is %d bytes", ErrCorruptPage, len(buf))
	}
	typ := PageType(binary.LittleEndian.Uint32(buf[0:4]))
	if typ != PageInternal && typ != PageLeaf {
		return nil, fmt.Errorf("%w: page type %d", ErrCorruptPage, uint32(typ))
	}
	count := int(int32(binary.LittleEndian.Uint32(buf[4:8])))
	if count < 1 || count > MaxEntries {
		return nil, fmt.Errorf("%w: entry count %d", ErrCorruptPage, count)
	}

	page := &Page{Type: typ, Pairs: make([]kv.Pair, count)}
	off := pageHeaderLen
	for i := range count {
		page.Pairs[i] = kv.Pair{
			Key:   int32(binary.LittleEndian.Uint32(buf[off : off+4])),
			Value: int32(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
		}
		off += 8
	}
	if typ == PageInternal {
		page.RightmostChild = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return page, nil
}
