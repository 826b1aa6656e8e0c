//go:build linux

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// openPageRead opens a run file for page reads, advising the kernel to drop
// its page cache for the file. Pages are cached once, in the engine's own
// buffer pool.
func openPageRead(name string) (*os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	// Advisory only; the read path works without it.
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
	return f, nil
}
