// Package atomicfile writes files so readers never see a partial document.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer stages output in a temporary file next to the target and renames it
// into place on Commit.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	done    bool
}

// Create opens a Writer for path, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ytrss-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &Writer{path: path, tmpPath: tmp.Name(), file: tmp}, nil
}

// Write writes p to the staged file.
func (w *Writer) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit syncs the staged file and renames it over the target.
func (w *Writer) Commit() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true

	if err := w.file.Chmod(0o644); err != nil {
		w.cleanup()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.cleanup()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the staged file. It is a no-op after Commit, so it can be
// deferred.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.cleanup()
}

func (w *Writer) cleanup() error {
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// WriteFile atomically replaces path with the contents of r.
func WriteFile(path string, r io.Reader) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer w.Abort()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Commit()
}
