package storage

import "fmt"

// DiskReader is a non-thread-safe, per-transaction reader bound to a
// DiskService's shared cache (spec.md section 4.E). Callers obtain one via
// DiskService.GetReader and must not share it across goroutines.
type DiskReader struct {
	svc *DiskService
}

// ReadPage returns the shared readable buffer for position/origin,
// loading it from the underlying file on a cache miss. The returned
// buffer's share counter has already been incremented on behalf of the
// caller; it must be released via ReleasePage.
func (r *DiskReader) ReadPage(position PagePosition, origin PageOrigin) (*PageBuffer, error) {
	factory := r.svc.factoryFor(origin)
	loader := func(pos PagePosition, dst []byte) error {
		handle, err := factory.Access()
		if err != nil {
			return err
		}
		n, err := handle.ReadAt(dst, int64(pos))
		if err != nil {
			return err
		}
		if n != len(dst) {
			return ErrShortRead
		}
		return nil
	}
	return r.svc.cache.GetReadablePage(position, origin, loader)
}

// GetWritablePage returns an exclusive buffer for position/origin, always
// freshly loaded from the underlying file (the readable index is not
// consulted), for in-place modification ahead of WriteAsync or Write.
func (r *DiskReader) GetWritablePage(position PagePosition, origin PageOrigin) (*PageBuffer, error) {
	factory := r.svc.factoryFor(origin)
	loader := func(pos PagePosition, dst []byte) error {
		handle, err := factory.Access()
		if err != nil {
			return err
		}
		n, err := handle.ReadAt(dst, int64(pos))
		if err != nil {
			return err
		}
		if n != len(dst) {
			return ErrShortRead
		}
		return nil
	}
	return r.svc.cache.GetWritablePage(position, origin, loader)
}

// ReleasePage returns a buffer obtained from ReadPage, decrementing its
// share counter. It must not be called on a buffer obtained from
// GetWritablePage; use DiscardDirtyPages/DiscardCleanPages for those.
func (r *DiskReader) ReleasePage(b *PageBuffer) {
	r.svc.cache.Release(b)
}

// Dispose is a no-op retained for symmetry with DiskService.Close; a
// DiskReader holds no resources of its own beyond the pages it borrowed
// from the shared cache, which the caller is responsible for releasing.
func (r *DiskReader) Dispose() {}

// PageScanner sequentially walks a whole file one page at a time,
// bypassing the cache entirely (spec.md section 4.E, ReadFull). It reuses
// a single backing buffer across calls to Next: the returned slice is
// only valid until the following call.
type PageScanner struct {
	file   RandomAccessFile
	origin PageOrigin
	length int64
	offset int64
	buf    []byte
}

// Next reads the following page into the scanner's reused buffer and
// returns it, or (0, nil, false, nil) once the file has been fully
// consumed. A file whose length is not an exact multiple of PageSize
// surfaces ErrShortRead on its final iteration.
func (s *PageScanner) Next() (PagePosition, []byte, bool, error) {
	if s.offset >= s.length {
		return 0, nil, false, nil
	}

	remaining := s.length - s.offset
	if remaining < PageSize {
		return 0, nil, false, fmt.Errorf("storage: scanning %s at offset %d: %w", s.origin, s.offset, ErrShortRead)
	}

	n, err := s.file.ReadAt(s.buf, s.offset)
	if err != nil {
		return 0, nil, false, err
	}
	if n != PageSize {
		return 0, nil, false, ErrShortRead
	}

	position := PagePosition(s.offset)
	s.offset += PageSize
	return position, s.buf, true, nil
}
