package vfs

import (
	"testing"
)

func TestCreateWriteRead(t *testing.T) {
	fs := Default()
	path := t.TempDir() + "/file"

	w, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	defer func() { _ = r.Close() }()
	if r.Size() != 11 {
		t.Errorf("Size = %d, want 11", r.Size())
	}
	buf := make([]byte, 5)
	if _, err := r.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("ReadAt = %q, want %q", buf, "world")
	}
}

func TestListDirAndExists(t *testing.T) {
	fs := Default()
	dir := t.TempDir()

	for _, name := range []string{"a.sst", "b.sst"} {
		w, err := fs.Create(dir + "/" + name)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		_ = w.Close()
	}

	names, err := fs.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("ListDir returned %d names, want 2: %v", len(names), names)
	}

	if !fs.Exists(dir + "/a.sst") {
		t.Error("Exists = false for an existing file")
	}
	if fs.Exists(dir + "/missing") {
		t.Error("Exists = true for a missing file")
	}
}

func TestRenameAndRemove(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	src, dst := dir+"/src", dir+"/dst"

	w, err := fs.Create(src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = w.Close()

	if err := fs.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fs.Exists(src) || !fs.Exists(dst) {
		t.Error("Rename left the wrong files behind")
	}
	if err := fs.SyncDir(dir); err != nil {
		t.Fatalf("SyncDir: %v", err)
	}
	if err := fs.Remove(dst); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists(dst) {
		t.Error("Remove left the file behind")
	}
}

func TestCountingFS(t *testing.T) {
	counting := NewCountingFS(Default())
	path := t.TempDir() + "/file"

	w, err := counting.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write(make([]byte, 64)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = w.Close()

	if counting.Opens() != 0 {
		t.Errorf("Opens = %d before any open", counting.Opens())
	}

	f, err := counting.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	buf := make([]byte, 16)
	_, _ = f.ReadAt(buf, 0)
	_, _ = f.ReadAt(buf, 16)
	_ = f.Close()

	if counting.Opens() != 1 {
		t.Errorf("Opens = %d, want 1", counting.Opens())
	}
	if counting.Reads() != 2 {
		t.Errorf("Reads = %d, want 2", counting.Reads())
	}

	counting.ResetCounters()
	if counting.Opens() != 0 || counting.Reads() != 0 {
		t.Error("ResetCounters did not zero the counters")
	}
}
