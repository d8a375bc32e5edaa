package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicWriter stages content in a hidden sibling file and renames it over
// the target on Commit. Readers see either the previous file or the new one.
type AtomicWriter struct {
	target string
	perm   fs.FileMode
	staged *os.File
}

// NewAtomicWriter stages a write to target. The parent directory is created
// when missing; perm is applied to the file before it replaces target.
func NewAtomicWriter(target string, perm fs.FileMode) (*AtomicWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	staged, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	return &AtomicWriter{target: target, perm: perm, staged: staged}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.staged.Write(p)
}

// Commit flushes the staged file and moves it into place.
func (w *AtomicWriter) Commit() error {
	name := w.staged.Name()
	err := w.staged.Chmod(w.perm)
	if err == nil {
		err = w.staged.Sync()
	}
	if cerr := w.staged.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, w.target)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("commit %s: %w", w.target, err)
	}
	return nil
}

// Abort drops the staged file; target is untouched.
func (w *AtomicWriter) Abort() error {
	w.staged.Close()
	return os.Remove(w.staged.Name())
}

// WriteFileAtomic replaces path with data in one step.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return w.Commit()
}
