package storage

import "sync/atomic"

// PageOrigin tags a page with the file it belongs to.
type PageOrigin uint8

const (
	// OriginUnset marks a writable buffer that has not yet been placed;
	// it is replaced with OriginData or OriginLog before the buffer is
	// promoted to readable.
	OriginUnset PageOrigin = iota
	OriginData
	OriginLog
)

func (o PageOrigin) String() string {
	switch o {
	case OriginData:
		return "data"
	case OriginLog:
		return "log"
	default:
		return "unset"
	}
}

// PagePosition is a byte offset into a file, always a multiple of PageSize
// once assigned. PositionUnset is the "not yet placed" sentinel spec.md
// calls MaxValue; Go's natural sentinel for a quantity that is otherwise
// always non-negative is -1, so that is what NewPage hands out.
type PagePosition int64

// PositionUnset marks a writable buffer that has not been assigned a
// position in either file yet.
const PositionUnset PagePosition = -1

// pageKey identifies a readable buffer uniquely: at most one readable
// buffer exists per (origin, position) pair at any time (spec.md invariant
// 3). It is comparable, so it works directly as a map key and as the type
// parameter for the recyclable-buffer LRU index.
type pageKey struct {
	origin   PageOrigin
	position PagePosition
}

// Buffer share-counter states. 0 means free (owned by the cache's free
// list); ShareWritable means uniquely owned by one writer; any value >= 1
// means shared by that many concurrent readers.
const (
	ShareFree     int32 = 0
	ShareWritable int32 = -1
)

// PageBuffer is an in-memory handle to one page: a backing byte slice
// carved out of a segment, its coordinates within that segment, its
// (origin, position) once placed, and a share counter encoding its
// lifecycle state (spec.md section 3).
type PageBuffer struct {
	// Bytes is a PageSize slice into the owning segment's backing array.
	// Only the buffer's current owner (the exclusive writer, or one of
	// the sharing readers) may read or write through it.
	Bytes []byte

	segmentIndex int
	slotIndex    int

	Position PagePosition
	Origin   PageOrigin

	share int32
}

func (b *PageBuffer) key() pageKey {
	return pageKey{origin: b.Origin, position: b.Position}
}

// ShareCount returns the buffer's current share counter. Safe to call
// concurrently with readers releasing their share.
func (b *PageBuffer) ShareCount() int32 {
	return atomic.LoadInt32(&b.share)
}

// IsWritable reports whether the buffer is exclusively owned by a writer.
func (b *PageBuffer) IsWritable() bool {
	return atomic.LoadInt32(&b.share) == ShareWritable
}

// Release decrements the share counter by one, representing one borrower
// (a reader, or the log writer queue's own reference) giving up its hold.
// It reports the counter's value after the decrement; the cache uses this
// to decide whether the buffer becomes eligible for recycling.
func (b *PageBuffer) Release() int32 {
	return atomic.AddInt32(&b.share, -1)
}

// addShare increments the share counter, used when a second reader joins
// an already-readable buffer.
func (b *PageBuffer) addShare() int32 {
	return atomic.AddInt32(&b.share, 1)
}

func (b *PageBuffer) reset() {
	for i := range b.Bytes {
		b.Bytes[i] = 0
	}
	b.Position = PositionUnset
	b.Origin = OriginUnset
	atomic.StoreInt32(&b.share, ShareFree)
}
