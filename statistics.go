package cairn

// statistics.go implements the ticker counters exposed by DB.Statistics.

import "sync/atomic"

// Ticker identifies one statistics counter.
type Ticker int

const (
	// TickerKeysWritten counts Put and Delete calls that reached the
	// memtable.
	TickerKeysWritten Ticker = iota
	// TickerKeysRead counts Get calls.
	TickerKeysRead
	// TickerMemtableHit counts Gets answered by the memtable.
	TickerMemtableHit
	// TickerBloomUseful counts run probes skipped by a Bloom rejection.
	TickerBloomUseful
	// TickerBloomFullPositive counts run probes the Bloom filter let
	// through, true and false positives alike.
	TickerBloomFullPositive
	// TickerFlushes counts memtable flushes.
	TickerFlushes
	// TickerCompactions counts two-run merges.
	TickerCompactions
	// TickerPoolHits counts buffer pool hits.
	TickerPoolHits
	// TickerPoolMisses counts buffer pool misses (one page read each).
	TickerPoolMisses

	numTickers
)

// String returns the ticker's name.
func (t Ticker) String() string {
	switch t {
	case TickerKeysWritten:
		return "keys.written"
	case TickerKeysRead:
		return "keys.read"
	case TickerMemtableHit:
		return "memtable.hit"
	case TickerBloomUseful:
		return "bloom.useful"
	case TickerBloomFullPositive:
		return "bloom.full_positive"
	case TickerFlushes:
		return "flushes"
	case TickerCompactions:
		return "compactions"
	case TickerPoolHits:
		return "pool.hits"
	case TickerPoolMisses:
		return "pool.misses"
	default:
		return "unknown"
	}
}

// Statistics is a set of monotonically increasing counters. All methods
// are safe for concurrent use.
type Statistics struct {
	tickers [numTickers]atomic.Uint64
}

// Count returns the current value of ticker t.
func (s *Statistics) Count(t Ticker) uint64 {
	if t < 0 || t >= numTickers {
		return 0
	}
	return s.tickers[t].Load()
}

// record adds delta to ticker t.
func (s *Statistics) record(t Ticker, delta uint64) {
	s.tickers[t].Add(delta)
}
