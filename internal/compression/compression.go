// Package compression provides the codecs used by checkpoint archives.
//
// Run and filter files are never compressed in place: the on-disk page
// format is fixed at 4096-byte pages. Compression applies only to
// checkpoint copies of those files.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// None stores checkpoint files verbatim.
	None Type = 0x0

	// Snappy uses Google Snappy block compression.
	Snappy Type = 0x1

	// LZ4 uses LZ4 block compression behind a size prefix.
	LZ4 Type = 0x2

	// Zstd uses Zstandard compression.
	Zstd Type = 0x3
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case LZ4:
		return "LZ4"
	case Zstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Ext returns the filename suffix appended to compressed checkpoint files.
func (t Type) Ext() string {
	switch t {
	case Snappy:
		return ".snappy"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case None, Snappy, LZ4, Zstd:
		return true
	default:
		return false
	}
}

// Compress compresses data using the specified compression type.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Encode(nil, data), nil

	case LZ4:
		return compressLZ4(data)

	case Zstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		out := encoder.EncodeAll(data, nil)
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("zstd close: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// compressLZ4 compresses data in the LZ4 raw block format with a 4-byte
// little-endian uncompressed-size prefix, so decompression can size its
// output buffer exactly.
func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	dst[0] = byte(len(data))
	dst[1] = byte(len(data) >> 8)
	dst[2] = byte(len(data) >> 16)
	dst[3] = byte(len(data) >> 24)

	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst[4:], ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress block: %w", err)
	}
	if n == 0 {
		// Incompressible input. Store the raw bytes after the size prefix
		// with a zero marker so Decompress can tell the two apart.
		out := make([]byte, 4+1+len(data))
		copy(out, dst[:4])
		out[4] = 0
		copy(out[5:], data)
		return out, nil
	}
	out := make([]byte, 4+1+n)
	copy(out, dst[:4])
	out[4] = 1
	copy(out[5:], dst[4:4+n])
	return out, nil
}

// Decompress decompresses data using the specified compression type.
func Decompress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Decode(nil, data)

	case LZ4:
		return decompressLZ4(data)

	case Zstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// decompressLZ4 reverses compressLZ4.
func decompressLZ4(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("lz4 uncompress block: short input (%d bytes)", len(data))
	}
	size := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	if size < 0 {
		return nil, fmt.Errorf("lz4 uncompress block: invalid size prefix")
	}
	if data[4] == 0 {
		if len(data)-5 != size {
			return nil, fmt.Errorf("lz4 uncompress block: stored size mismatch")
		}
		out := make([]byte, size)
		copy(out, data[5:])
		return out, nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[5:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 uncompress block: %w", err)
	}
	return dst[:n], nil
}
