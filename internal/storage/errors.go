package storage

import "errors"

var (
	// ErrReadOnly is returned by every operation that mutates state
	// (NewPage, WriteAsync, Write, SetLength, MarkAsInvalidState) when the
	// owning file was opened read-only. The source
	// left this behaviour undefined; this implementation rejects
	// queue-touching operations outright in read-only mode rather than
	// guessing at a silent no-op.
	ErrReadOnly = errors.New("storage: database opened read-only")

	// ErrQueueClosed is returned by EnqueuePage once Dispose has been
	// called on the log writer queue.
	ErrQueueClosed = errors.New("storage: log writer queue is closed")

	// ErrNotWritable is an invariant violation: the caller passed a page
	// whose share counter is not BufferWritable to an operation that
	// requires exclusive ownership (MoveToReadable, TryMoveToReadable).
	// Write reports the same condition as ErrPageShared.
	ErrNotWritable = errors.New("storage: page buffer is not held writable")

	// ErrPositionUnset is an invariant violation: MoveToReadable was
	// called on a writable buffer whose position was never assigned.
	ErrPositionUnset = errors.New("storage: page buffer position not assigned")

	// ErrMisalignedPosition is an invariant violation: a position used to
	// address a page is not a multiple of PageSize.
	ErrMisalignedPosition = errors.New("storage: page position is not page-aligned")

	// ErrShortRead is an invariant violation surfaced by ReadFull when the
	// underlying file's length is not an exact multiple of PageSize.
	ErrShortRead = errors.New("storage: short read while scanning file in whole pages")

	// ErrQueueNotEmpty is returned by SetLength(Log) when the log writer
	// queue still holds undrained pages.
	ErrQueueNotEmpty = errors.New("storage: cannot resize log file while writer queue is not empty")

	// ErrPageShared is an invariant violation: Write requires pages held
	// exclusively writable (as returned by NewPage or GetWritablePage),
	// since it bypasses the cache entirely and never promotes the page
	// to readable.
	ErrPageShared = errors.New("storage: page must be held writable for a direct write")
)
