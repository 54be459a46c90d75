package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)

func TestOSFileSystem_CreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fits.csv")
	var fsys OSFileSystem

	w, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, "species_id\ncod\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := fsys.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "species_id\ncod\n" {
		t.Errorf("read %q", data)
	}

	if _, err := fsys.Open(filepath.Join(t.TempDir(), "absent.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(absent) error = %v, want not-exist", err)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("data/obs.csv", []byte("hello"))

	data, err := m.ReadFile("./data/obs.csv")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q, want hello", data)
	}

	// The returned slice is a copy.
	data[0] = 'J'
	again, _ := m.ReadFile("data/obs.csv")
	if string(again) != "hello" {
		t.Errorf("stored data was modified through ReadFile result: %q", again)
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("out.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	io.WriteString(w, "a,b\n")

	if data, _ := m.ReadFile("out.csv"); len(data) != 0 {
		t.Errorf("contents visible before Close: %q", data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if data, _ := m.ReadFile("out.csv"); string(data) != "a,b\n" {
		t.Errorf("contents after Close = %q", data)
	}
}

func TestMemoryFileSystem_OpenNonExistent(t *testing.T) {
	m := NewMemoryFileSystem()
	_, err := m.Open("missing.csv")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want fs.ErrNotExist", err)
	}
	var pe *fs.PathError
	if !errors.As(err, &pe) || pe.Op != "open" {
		t.Errorf("expected *fs.PathError with op open, got %v", err)
	}
}

func TestMemoryFileSystem_Open(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("obs.csv", []byte("species_id\n"))

	r, err := m.Open("obs.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "species_id\n" {
		t.Errorf("read %q", data)
	}
}
