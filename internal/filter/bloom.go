// Package filter implements the per-run Bloom filters.
//
// A filter is a bit array of m bits probed by k seeded hashes. Point
// lookups consult the filter before touching a run file: a negative answer
// proves the key is absent, so the run can be skipped without any I/O.
// False positives cost one wasted descent; false negatives never happen.
//
// Sidecar file format (little-endian):
//
//	offset 0  : m  uint64   bit count
//	offset 8  : k  uint64   hash count
//	offset 16 : packed bits, ceil(m/8) bytes, LSB-first within each byte
//
// The hash family is XXH3 with the probe index as seed, so serialized
// filters are stable across processes and platforms.
package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/xxh3"
)

// ErrIncompatible is returned when two filters with different parameters
// are combined.
var ErrIncompatible = errors.New("filter: incompatible bloom filter parameters")

// headerLen is the serialized size of the m and k fields.
const headerLen = 16

// Filter is a Bloom filter over int32 keys.
type Filter struct {
	m    uint64 // number of bits
	k    uint64 // number of hash probes
	bits *bitset.BitSet
}

// New creates a filter sized for maxKeys keys at bitsPerKey bits each.
// The probe count is round((m/n)·ln 2); 8 bits per key yields k = 6 and a
// false-positive rate around 1%.
func New(maxKeys, bitsPerKey int) *Filter {
	if maxKeys < 1 {
		maxKeys = 1
	}
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	m := uint64(maxKeys) * uint64(bitsPerKey)
	k := uint64(math.Round(float64(m) / float64(maxKeys) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &Filter{m: m, k: k, bits: bitset.New(uint(m))}
}

// Bits returns the filter's bit count m.
func (f *Filter) Bits() uint64 { return f.m }

// Hashes returns the filter's probe count k.
func (f *Filter) Hashes() uint64 { return f.k }

// Insert sets the k probe bits for key.
func (f *Filter) Insert(key int32) {
	for i := uint64(0); i < f.k; i++ {
		f.bits.Set(uint(f.probe(key, i)))
	}
}

// MayContain returns true if key may be present. A false return means the
// key is definitely absent.
func (f *Filter) MayContain(key int32) bool {
	for i := uint64(0); i < f.k; i++ {
		if !f.bits.Test(uint(f.probe(key, i))) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of f.
func (f *Filter) Clone() *Filter {
	return &Filter{m: f.m, k: f.k, bits: f.bits.Clone()}
}

// Union ORs other into f. The two filters must share m and k.
func (f *Filter) Union(other *Filter) error {
	if f.m != other.m || f.k != other.k {
		return fmt.Errorf("%w: m=%d/k=%d vs m=%d/k=%d", ErrIncompatible, f.m, f.k, other.m, other.k)
	}
	f.bits.InPlaceUnion(other.bits)
	return nil
}

// probe returns the bit position of probe i for key.
func (f *Filter) probe(key int32, i uint64) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(key))
	return xxh3.HashSeed(buf[:], i) % f.m
}

// Marshal serializes the filter into the sidecar format.
func (f *Filter) Marshal() []byte {
	payload := (f.m + 7) / 8
	out := make([]byte, headerLen+payload)
	binary.LittleEndian.PutUint64(out[0:8], f.m)
	binary.LittleEndian.PutUint64(out[8:16], f.k)

	// bitset stores 64-bit words with bit i of the filter at bit i%64 of
	// word i/64. Emitting each word little-endian therefore produces the
	// LSB-first byte packing of the wire format.
	words := f.bits.Bytes()
	var word [8]byte
	for wi, w := range words {
		binary.LittleEndian.PutUint64(word[:], w)
		off := headerLen + wi*8
		n := copy(out[off:], word[:])
		if n < 8 {
			break
		}
	}
	return out
}

// Unmarshal parses a serialized filter, rejecting payloads whose size does
// not match the declared bit count.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("filter: truncated header (%d bytes)", len(data))
	}
	m := binary.LittleEndian.Uint64(data[0:8])
	k := binary.LittleEndian.Uint64(data[8:16])
	if m == 0 || k == 0 {
		return nil, fmt.Errorf("filter: invalid parameters m=%d k=%d", m, k)
	}
	payload := (m + 7) / 8
	if uint64(len(data)-headerLen) != payload {
		return nil, fmt.Errorf("filter: payload size %d does not match m=%d (want %d)",
			len(data)-headerLen, m, payload)
	}

	nwords := (payload + 7) / 8
	words := make([]uint64, nwords)
	var word [8]byte
	for wi := range words {
		clear(word[:])
		off := headerLen + wi*8
		end := off + 8
		if end > len(data) {
			end = len(data)
		}
		copy(word[:], data[off:end])
		words[wi] = binary.LittleEndian.Uint64(word[:])
	}
	return &Filter{m: m, k: k, bits: bitset.FromWithLength(uint(m), words)}, nil
}
