package storage

import (
	"fmt"
	"io"
	"os"
)

// RandomAccessFile is the positional I/O contract of spec.md section 4.A.
// It is safe for concurrent positional reads and writes to disjoint byte
// ranges; it is not required to be safe under concurrent mutation of the
// same range. Flush is a barrier against all prior writes on the handle.
type RandomAccessFile interface {
	// Length returns the current byte length of the file.
	Length() (int64, error)
	// SetLength truncates or extends the file to the given length.
	SetLength(length int64) error
	// ReadAt reads len(buf) bytes starting at offset; it may return a
	// short read at EOF, per io.ReaderAt semantics.
	ReadAt(buf []byte, offset int64) (int, error)
	// WriteAt persists buf at offset, extending the file if necessary.
	WriteAt(buf []byte, offset int64) (int, error)
	// Flush durably persists every prior write on this handle.
	Flush() error
	// ReadVectored gathers into each buffer in order, starting at
	// baseOffset and advancing by len(buf) after each one.
	ReadVectored(bufs [][]byte, baseOffset int64) error
	// WriteVectored scatters each buffer in order, starting at
	// baseOffset and advancing by len(buf) after each one.
	WriteVectored(bufs [][]byte, baseOffset int64) error
	// Close releases the underlying OS handle.
	Close() error
}

// osFile is the RandomAccessFile implementation backed by a real *os.File.
type osFile struct {
	f *os.File
}

// openOSFile opens path for positional I/O. readOnly selects O_RDONLY;
// otherwise the file is created if missing and opened read-write.
func openOSFile(path string, readOnly bool) (*osFile, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &osFile{f: f}, nil
}

func (o *osFile) Length() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("storage: stat %s: %w", o.f.Name(), err)
	}
	return fi.Size(), nil
}

func (o *osFile) SetLength(length int64) error {
	if err := o.f.Truncate(length); err != nil {
		return fmt.Errorf("storage: truncate %s to %d: %w", o.f.Name(), length, err)
	}
	return nil
}

func (o *osFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := o.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("storage: read %s at %d: %w", o.f.Name(), offset, err)
	}
	return n, nil
}

func (o *osFile) WriteAt(buf []byte, offset int64) (int, error) {
	n, err := o.f.WriteAt(buf, offset)
	if err != nil {
		return n, fmt.Errorf("storage: write %s at %d: %w", o.f.Name(), offset, err)
	}
	return n, nil
}

func (o *osFile) Flush() error {
	if err := o.f.Sync(); err != nil {
		return fmt.Errorf("storage: flush %s: %w", o.f.Name(), err)
	}
	return nil
}

// ReadVectored and WriteVectored give the reader/writer a gather/scatter
// call shape without requiring a platform-specific preadv/pwritev: Go's
// stdlib has no portable vectored positional I/O, so each buffer is read
// or written individually at its own offset. Buffers at disjoint offsets
// may still be issued concurrently by the OS's own readahead/writeback,
// only the call sequencing here is not parallel.
func (o *osFile) ReadVectored(bufs [][]byte, baseOffset int64) error {
	offset := baseOffset
	for i, buf := range bufs {
		if _, err := o.ReadAt(buf, offset); err != nil {
			return fmt.Errorf("storage: vectored read buffer %d: %w", i, err)
		}
		offset += int64(len(buf))
	}
	return nil
}

func (o *osFile) WriteVectored(bufs [][]byte, baseOffset int64) error {
	offset := baseOffset
	for i, buf := range bufs {
		if _, err := o.WriteAt(buf, offset); err != nil {
			return fmt.Errorf("storage: vectored write buffer %d: %w", i, err)
		}
		offset += int64(len(buf))
	}
	return nil
}

func (o *osFile) Close() error {
	if err := o.f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", o.f.Name(), err)
	}
	return nil
}
