package storage

// segment is a batch of contiguous PageSize buffers allocated in one heap
// object, so the cache never pays per-page allocation cost under load
// (spec.md section 9, "design notes"). Segments are appended to, never
// shrunk, for the lifetime of the cache.
type segment struct {
	index   int
	backing []byte
	slots   []PageBuffer
}

func newSegment(index, size int) *segment {
	s := &segment{
		index:   index,
		backing: make([]byte, size*PageSize),
		slots:   make([]PageBuffer, size),
	}
	for i := range s.slots {
		s.slots[i] = PageBuffer{
			Bytes:        s.backing[i*PageSize : (i+1)*PageSize : (i+1)*PageSize],
			segmentIndex: index,
			slotIndex:    i,
			Position:     PositionUnset,
			Origin:       OriginUnset,
			share:        ShareFree,
		}
	}
	return s
}

// segmentSizeFor returns the size to allocate for the nth segment (0
// based), clamping to the last configured size once the list of
// memorySegmentSizes is exhausted so growth never stops.
func segmentSizeFor(n int) int {
	if n < len(memorySegmentSizes) {
		return memorySegmentSizes[n]
	}
	return memorySegmentSizes[len(memorySegmentSizes)-1]
}
