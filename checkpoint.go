package cairn

// checkpoint.go implements point-in-time copies of a store.

import (
	"fmt"

	"github.com/cairnkv/cairn/internal/compression"
	"github.com/cairnkv/cairn/internal/sstable"
)

// CompressionType selects the codec applied to checkpointed files.
type CompressionType = compression.Type

// Compression type constants.
const (
	// CompressionNone copies files verbatim. The checkpoint directory is
	// itself a valid store directory.
	CompressionNone = compression.None
	// CompressionSnappy compresses each file with Snappy.
	CompressionSnappy = compression.Snappy
	// CompressionLZ4 compresses each file with LZ4.
	CompressionLZ4 = compression.LZ4
	// CompressionZstd compresses each file with Zstandard.
	CompressionZstd = compression.Zstd
)

// Checkpoint flushes the memtable and copies every live run and filter
// into dir, which must not be inside the store directory. Files keep their
// run names, with the codec's suffix appended when compressing. A
// checkpoint taken with CompressionNone can be opened directly as a store.
func (db *DB) Checkpoint(dir string, codec CompressionType) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return ErrClosed
	}
	if !codec.IsSupported() {
		return fmt.Errorf("cairn: checkpoint: unsupported compression type %d", uint8(codec))
	}
	if dir == db.dir {
		return fmt.Errorf("cairn: checkpoint: target is the store directory")
	}

	if err := db.flushLocked(); err != nil {
		return err
	}
	if err := db.compactLocked(); err != nil {
		return err
	}
	if err := db.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cairn: checkpoint: create %s: %w", dir, err)
	}

	for _, r := range db.runs {
		for _, name := range []string{r.name, sstable.FilterFileName(r.name)} {
			if err := db.copyFile(name, dir, codec); err != nil {
				return err
			}
		}
	}
	if err := db.fs.SyncDir(dir); err != nil {
		return fmt.Errorf("cairn: checkpoint: sync %s: %w", dir, err)
	}
	db.log.Infof("[db] checkpointed %d runs to %s (%s)", len(db.runs), dir, codec)
	return nil
}

// copyFile copies one store file into dir through the codec.
func (db *DB) copyFile(name, dir string, codec CompressionType) error {
	raw, err := readFileAll(db.fs, db.runPath(name))
	if err != nil {
		return fmt.Errorf("cairn: checkpoint: read %s: %w", name, err)
	}
	data, err := compression.Compress(codec, raw)
	if err != nil {
		return fmt.Errorf("cairn: checkpoint: compress %s: %w", name, err)
	}

	dst := dir + "/" + name + codec.Ext()
	out, err := db.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("cairn: checkpoint: create %s: %w", dst, err)
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		return fmt.Errorf("cairn: checkpoint: write %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("cairn: checkpoint: sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("cairn: checkpoint: close %s: %w", dst, err)
	}
	return nil
}

// RestoreCheckpointFile decompresses the contents of one checkpointed file
// back to its original bytes. codec must be the codec the checkpoint was
// taken with.
func RestoreCheckpointFile(data []byte, codec CompressionType) ([]byte, error) {
	return compression.Decompress(codec, data)
}
