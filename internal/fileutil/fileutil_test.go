package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		max     int64
		wantErr bool
	}{
		{name: "under limit", input: "milk", max: 10},
		{name: "at limit", input: "12345", max: 5},
		{name: "empty", input: "", max: 5},
		{name: "over limit", input: "123456", max: 5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := ReadLimited(strings.NewReader(tt.input), tt.max)
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("err = %v, want ErrTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.input {
				t.Errorf("got %q, want %q", data, tt.input)
			}
		})
	}
}

func TestReadFileLimited(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	if err := os.WriteFile(path, []byte("# Groceries\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileLimited(path, 1024)
	if err != nil {
		t.Fatalf("ReadFileLimited: %v", err)
	}
	if string(data) != "# Groceries\n" {
		t.Errorf("got %q", data)
	}

	if _, err := ReadFileLimited(path, 4); !errors.Is(err, ErrTooLarge) {
		t.Errorf("small limit: err = %v, want ErrTooLarge", err)
	}
	if _, err := ReadFileLimited(filepath.Join(dir, "missing"), 10); !os.IsNotExist(err) {
		t.Errorf("missing file: err = %v, want not-exist", err)
	}
	if _, err := ReadFileLimited(dir, 10); err == nil {
		t.Error("reading a directory should fail")
	}
}

func TestAtomicWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notebase.yaml")

	if err := AtomicWriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("perm = %o, want 644", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestAtomicWriteFile_MissingDirectory(t *testing.T) {
	t.Parallel()
	if err := AtomicWriteFile(filepath.Join(t.TempDir(), "nope", "f"), []byte("x"), 0o600); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

type failingTemp struct {
	*os.File
	failWrite bool
}

func (f *failingTemp) Write(p []byte) (int, error) {
	if f.failWrite {
		return 0, errors.New("disk full")
	}
	return f.File.Write(p)
}

func TestAtomicWriteFile_CleansUpOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(path, []byte("keep"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ops  func() fsOps
	}{
		{
			name: "write fails",
			ops: func() fsOps {
				o := defaultFSOps()
				o.createTemp = func(dir, pattern string) (tempFile, error) {
					f, err := os.CreateTemp(dir, pattern)
					if err != nil {
						return nil, err
					}
					return &failingTemp{File: f, failWrite: true}, nil
				}
				return o
			},
		},
		{
			name: "rename fails",
			ops: func() fsOps {
				o := defaultFSOps()
				o.rename = func(string, string) error { return errors.New("cross-device link") }
				return o
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := atomicWriteFile(path, []byte("replaced"), 0o600, tt.ops()); err == nil {
				t.Fatal("expected an error")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "keep" {
				t.Errorf("original replaced: %q", data)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 1 {
				t.Errorf("temp file left behind: %d entries", len(entries))
			}
		})
	}
}
