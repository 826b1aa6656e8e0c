package vfs

import (
	"sync/atomic"
)

// CountingFS wraps an FS and counts file opens and page reads. Tests use it
// to assert that Bloom rejections keep run files closed.
type CountingFS struct {
	FS

	opens atomic.Int64
	reads atomic.Int64
}

// NewCountingFS wraps base in a counting decorator.
func NewCountingFS(base FS) *CountingFS {
	return &CountingFS{FS: base}
}

// Opens returns the number of OpenRandomAccess calls observed.
func (c *CountingFS) Opens() int64 { return c.opens.Load() }

// Reads returns the number of ReadAt calls observed.
func (c *CountingFS) Reads() int64 { return c.reads.Load() }

// ResetCounters zeroes the open and read counters.
func (c *CountingFS) ResetCounters() {
	c.opens.Store(0)
	c.reads.Store(0)
}

func (c *CountingFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	f, err := c.FS.OpenRandomAccess(name)
	if err != nil {
		return nil, err
	}
	c.opens.Add(1)
	return &countingFile{RandomAccessFile: f, fs: c}, nil
}

type countingFile struct {
	RandomAccessFile
	fs *CountingFS
}

func (f *countingFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.reads.Add(1)
	return f.RandomAccessFile.ReadAt(p, off)
}
