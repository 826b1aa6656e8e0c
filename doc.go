// Package cairn is an embedded ordered key-value store for 32-bit integer
// keys and values, built as a log-structured merge tree.
//
// Writes land in an in-memory sorted buffer (the memtable). When the
// buffer fills, its contents are rewritten as an immutable sorted run on
// disk, a static B-tree over fixed 4 KiB pages with a Bloom filter
// sidecar. Two runs of the same level are merged into one run of the next
// level, so reads probe the memtable and then each run newest-first,
// skipping runs whose Bloom filter rejects the key.
//
// A store is a directory. One process may have it open at a time, and the
// handle serializes all operations internally with a single lock.
//
// Basic usage:
//
//	db, err := cairn.Open("/data/ratings", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	_ = db.Put(42, 7)
//	v, err := db.Get(42)        // 7
//	pairs, err := db.Scan(0, 99)
//	_ = db.Delete(42)
package cairn
