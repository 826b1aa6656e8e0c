//go:build !linux

package vfs

import "os"

// openPageRead opens a run file for page reads. Non-Linux platforms fall
// back to buffered reads; the engine's buffer pool still bounds read
// amplification.
func openPageRead(name string) (*os.File, error) {
	return os.Open(name)
}
