package storage

import (
	"fmt"
	"os"
	"sync"
)

// FileFactory is the named, lazily-opened binding to one path described in
// spec.md section 4.B. It produces at most one open handle, on first
// Access, and all methods are internally serialised.
type FileFactory struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	handle   RandomAccessFile
}

// NewFileFactory binds a factory to path without touching the filesystem.
func NewFileFactory(path string, readOnly bool) *FileFactory {
	return &FileFactory{path: path, readOnly: readOnly}
}

// Path returns the bound path.
func (f *FileFactory) Path() string {
	return f.path
}

// ReadOnly reports whether handles from this factory reject mutation.
func (f *FileFactory) ReadOnly() bool {
	return f.readOnly
}

// Access returns the open handle, opening it on the first call.
func (f *FileFactory) Access() (RandomAccessFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle != nil {
		return f.handle, nil
	}

	h, err := openOSFile(f.path, f.readOnly)
	if err != nil {
		return nil, fmt.Errorf("storage: file factory access %s: %w", f.path, err)
	}
	f.handle = h
	return h, nil
}

// Exists reports whether the path exists on disk, or the handle is
// already open (in which case the path trivially exists).
func (f *FileFactory) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle != nil {
		return true
	}
	_, err := os.Stat(f.path)
	return err == nil
}

// GetLength returns the file's length: the size on disk if the handle
// hasn't been opened yet, otherwise the open handle's length.
func (f *FileFactory) GetLength() (int64, error) {
	f.mu.Lock()
	handle := f.handle
	f.mu.Unlock()

	if handle != nil {
		return handle.Length()
	}

	fi, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: stat %s: %w", f.path, err)
	}
	return fi.Size(), nil
}

// Close closes the open handle, if any. Idempotent.
func (f *FileFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle == nil {
		return nil
	}
	err := f.handle.Close()
	f.handle = nil
	if err != nil {
		return fmt.Errorf("storage: close file factory %s: %w", f.path, err)
	}
	return nil
}

// Delete closes the handle (if open) then removes the file from disk.
func (f *FileFactory) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle != nil {
		if err := f.handle.Close(); err != nil {
			return fmt.Errorf("storage: close before delete %s: %w", f.path, err)
		}
		f.handle = nil
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", f.path, err)
	}
	return nil
}
