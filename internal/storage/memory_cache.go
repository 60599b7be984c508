package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/minidb/storage/pkg/lrucache"
)

// PageLoader fills a writable buffer's bytes from disk. It is invoked by
// the cache outside any lock it holds, so a loader may itself block on I/O
// without stalling other cache operations.
type PageLoader func(position PagePosition, dst []byte) error

// MemoryCache is the page-addressable, share-counted buffer pool described
// in spec.md section 4.C. It owns every PageBuffer ever allocated for the
// lifetime of the process: buffers move between a free pool, readable
// index and out to writers, but are never returned to the heap.
type MemoryCache struct {
	mu sync.Mutex

	logger *zap.Logger

	segments []*segment
	free     []*PageBuffer

	readable map[pageKey]*PageBuffer

	// recyclable tracks, in least-recently-touched order, readable
	// buffers whose share counter has dropped to zero. NewPage prefers
	// popping from here over allocating a new segment (spec.md section
	// 4.C, "source order"); see SPEC_FULL.md's DOMAIN STACK section for
	// why an LRU victim order was chosen over an arbitrary one.
	recyclable *lrucache.Cache[pageKey]
}

// NewMemoryCache constructs an empty cache. No segments are allocated
// until the first NewPage/GetReadablePage/GetWritablePage call.
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		logger:     logger,
		readable:   make(map[pageKey]*PageBuffer),
		recyclable: lrucache.New[pageKey](0), // capacity unused; see acquireBuffer
	}
}

// acquireBuffer implements the source order shared by NewPage and
// GetReadablePage/GetWritablePage: (1) free pool, (2) a zero-share
// readable buffer picked by recency, (3) a fresh segment. Caller holds mu.
func (c *MemoryCache) acquireBuffer() *PageBuffer {
	if n := len(c.free); n > 0 {
		b := c.free[n-1]
		c.free = c.free[:n-1]
		return b
	}

	if key, value, ok := c.recyclable.RemoveOldest(); ok {
		b := value.(*PageBuffer)
		delete(c.readable, key)
		return b
	}

	idx := len(c.segments)
	seg := newSegment(idx, segmentSizeFor(idx))
	c.segments = append(c.segments, seg)
	c.logger.Sugar().With("segment_index", idx, "segment_size", len(seg.slots)).
		Info("memory cache allocated a new segment")

	for i := 1; i < len(seg.slots); i++ {
		c.free = append(c.free, &seg.slots[i])
	}
	return &seg.slots[0]
}

// NewPage returns a fresh writable buffer: share counter BufferWritable,
// position unset, origin unset, contents zeroed.
func (c *MemoryCache) NewPage() *PageBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.acquireBuffer()
	b.reset()
	atomic.StoreInt32(&b.share, ShareWritable)
	return b
}

// GetReadablePage returns the shared readable buffer for (origin,
// position), loading it from disk via loader on a cache miss. Each
// successful call increments the share counter by one; the caller must
// call Release when done.
func (c *MemoryCache) GetReadablePage(position PagePosition, origin PageOrigin, loader PageLoader) (*PageBuffer, error) {
	key := pageKey{origin: origin, position: position}

	c.mu.Lock()
	if b, ok := c.readable[key]; ok {
		if b.addShare() == 1 {
			// Was sitting at zero in the recyclable index; claim it back.
			c.recyclable.Remove(key)
		}
		c.mu.Unlock()
		return b, nil
	}

	b := c.acquireBuffer()
	c.mu.Unlock()

	b.reset()
	if err := loader(position, b.Bytes); err != nil {
		c.mu.Lock()
		c.free = append(c.free, b)
		c.mu.Unlock()
		return nil, fmt.Errorf("storage: load page %s@%d: %w", origin, position, err)
	}

	b.Position = position
	b.Origin = origin
	atomic.StoreInt32(&b.share, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have raced us and installed the same key
	// while we were loading outside the lock; the buffer already installed
	// wins and ours goes straight back to free, matching the "at most one
	// readable buffer per key" invariant.
	if existing, ok := c.readable[key]; ok {
		if existing.addShare() == 1 {
			// Was sitting at zero in the recyclable index; claim it back.
			c.recyclable.Remove(key)
		}
		c.free = append(c.free, b)
		return existing, nil
	}

	c.readable[key] = b
	return b, nil
}

// GetWritablePage always returns a fresh writable buffer loaded from disk
// for read-modify-write. The readable index is left untouched; the caller
// is expected to mutate the buffer and call MoveToReadable.
func (c *MemoryCache) GetWritablePage(position PagePosition, origin PageOrigin, loader PageLoader) (*PageBuffer, error) {
	c.mu.Lock()
	b := c.acquireBuffer()
	c.mu.Unlock()

	b.reset()
	if err := loader(position, b.Bytes); err != nil {
		c.mu.Lock()
		c.free = append(c.free, b)
		c.mu.Unlock()
		return nil, fmt.Errorf("storage: load page %s@%d for write: %w", origin, position, err)
	}

	b.Position = position
	b.Origin = origin
	atomic.StoreInt32(&b.share, ShareWritable)
	return b, nil
}

// MoveToReadable installs a writable buffer under its (origin, position)
// key as the new readable version, replacing whatever was there. The
// replaced buffer is removed from the readable/recyclable index so no
// later lookup can find it under that key; if it has no live readers it
// is freed immediately, otherwise it is left intact for them and returns
// to free on its own once the last one releases it.
func (c *MemoryCache) MoveToReadable(w *PageBuffer) (*PageBuffer, error) {
	if !w.IsWritable() {
		return nil, ErrNotWritable
	}
	if w.Position == PositionUnset {
		return nil, ErrPositionUnset
	}

	key := w.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.readable[key]; ok && old != w {
		// old's share counter reflects live readers, not an index
		// reference - decrementing it here would recycle the buffer out
		// from under whoever still holds it. Unindex it instead: any
		// reader still holding it releases normally via Release, which
		// (finding it no longer indexed under key) returns it straight
		// to free once the last one lets go. If nobody holds it right
		// now, free it immediately.
		delete(c.readable, key)
		c.recyclable.Remove(key)
		if old.ShareCount() == 0 {
			old.reset()
			c.free = append(c.free, old)
		}
	}

	atomic.StoreInt32(&w.share, 1)
	c.readable[key] = w
	return w, nil
}

// TryMoveToReadable behaves like MoveToReadable but fails (returning
// false, nil error) if the key already has a readable entry, so a clean
// write doesn't race a concurrent reader that already has the old page.
func (c *MemoryCache) TryMoveToReadable(w *PageBuffer) (bool, error) {
	if !w.IsWritable() {
		return false, ErrNotWritable
	}
	if w.Position == PositionUnset {
		return false, ErrPositionUnset
	}

	key := w.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.readable[key]; ok {
		return false, nil
	}

	atomic.StoreInt32(&w.share, 1)
	c.readable[key] = w
	return true, nil
}

// DiscardPage returns a buffer to the free pool, removing any
// readable-index entry that points at it. Used on rollback paths. A
// buffer that is already free (origin/position unset, share already
// ShareFree) is left alone rather than appended to the free pool a
// second time, so discarding the same buffer twice stays idempotent.
func (c *MemoryCache) DiscardPage(b *PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.Origin != OriginUnset || b.Position != PositionUnset {
		key := b.key()
		if existing, ok := c.readable[key]; ok && existing == b {
			delete(c.readable, key)
			c.recyclable.Remove(key)
		}
	} else if b.ShareCount() == ShareFree {
		return
	}

	b.reset()
	c.free = append(c.free, b)
}

// Release decrements a readable buffer's share counter. Once it reaches
// zero it is moved into the recyclable pool rather than the free pool
// directly, so GetReadablePage can still find it by key until something
// actually needs the memory back.
func (c *MemoryCache) Release(b *PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(b)
}

func (c *MemoryCache) releaseLocked(b *PageBuffer) {
	if b.Release() > 0 {
		return
	}

	key := b.key()
	if existing, ok := c.readable[key]; ok && existing == b {
		c.recyclable.Put(key, b, false)
		return
	}

	// Not (or no longer) indexed under its key - e.g. it lost a
	// MoveToReadable race - so it goes straight back to free.
	b.reset()
	c.free = append(c.free, b)
}

// Stats reports coarse counts useful for diagnostics and tests.
type CacheStats struct {
	Segments        int
	FreeCount       int
	ReadableCount   int
	RecyclableCount int
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Segments:        len(c.segments),
		FreeCount:       len(c.free),
		ReadableCount:   len(c.readable),
		RecyclableCount: c.recyclable.Len(),
	}
}
