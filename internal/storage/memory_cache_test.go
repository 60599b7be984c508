package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache() *MemoryCache {
	return NewMemoryCache(zap.NewNop())
}

func noopLoader(_ PagePosition, _ []byte) error { return nil }

func Test_MemoryCache_NewPageIsWritable(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	p := c.NewPage()

	assert.True(t, p.IsWritable())
	assert.Equal(t, OriginUnset, p.Origin)
	assert.Equal(t, PositionUnset, p.Position)
}

func Test_MemoryCache_GetReadablePage_SameKeySharesBuffer(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	p1, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	p2, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, int32(2), p1.ShareCount())
}

func Test_MemoryCache_GetReadablePage_DifferentKeysDifferentBuffers(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	p1, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	p2, err := c.GetReadablePage(PageSize, OriginData, noopLoader)
	require.NoError(t, err)

	assert.NotSame(t, p1, p2)
}

func Test_MemoryCache_GetReadablePage_LoaderErrorReturnsBufferToFree(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	boom := errors.New("boom")

	_, err := c.GetReadablePage(0, OriginData, func(_ PagePosition, _ []byte) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The first acquire allocated a whole segment: its other slots are
	// already free, plus the one buffer returned after the failed load.
	stats := c.Stats()
	assert.Equal(t, 0, stats.ReadableCount)
	assert.Equal(t, memorySegmentSizes[0], stats.FreeCount)
}

func Test_MemoryCache_ReleaseToZeroMovesToRecyclable(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	p, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	c.Release(p)

	stats := c.Stats()
	assert.Equal(t, 1, stats.ReadableCount, "still indexed by key until actually recycled")
	assert.Equal(t, 1, stats.RecyclableCount)
	assert.Equal(t, int32(0), p.ShareCount())
}

func Test_MemoryCache_GetReadablePage_ReclaimsFromRecyclable(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	p, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	c.Release(p)

	p2, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	assert.Same(t, p, p2)
	assert.Equal(t, int32(1), p2.ShareCount())
	assert.Equal(t, 0, c.Stats().RecyclableCount)
}

func Test_MemoryCache_MoveToReadable_RequiresWritableBuffer(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	p, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	_, err = c.MoveToReadable(p)
	assert.ErrorIs(t, err, ErrNotWritable)
}

func Test_MemoryCache_MoveToReadable_RequiresPosition(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	p := c.NewPage()

	_, err := c.MoveToReadable(p)
	assert.ErrorIs(t, err, ErrPositionUnset)
}

func Test_MemoryCache_MoveToReadable_ReplacesOldVersion(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	old, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	w := c.NewPage()
	w.Position = 0
	w.Origin = OriginData

	installed, err := c.MoveToReadable(w)
	require.NoError(t, err)
	assert.Same(t, w, installed)

	fetched, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	assert.Same(t, w, fetched)
	assert.NotSame(t, old, fetched)
}

func Test_MemoryCache_MoveToReadable_DoesNotStealLiveReadersBuffer(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	old, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	// old now has a live reader (share == 1) that never released it before
	// the page is rewritten underneath, as in a read-modify-write.

	w := c.NewPage()
	w.Position = 0
	w.Origin = OriginData

	_, err = c.MoveToReadable(w)
	require.NoError(t, err)

	// old must still be intact for its live reader: untouched, not reset
	// or recycled out from under it.
	assert.Equal(t, int32(1), old.ShareCount())
	assert.Equal(t, OriginData, old.Origin)

	// A lookup for the key must see the newly installed w, not a second
	// buffer, and must not resurrect old via a stale recyclable entry.
	fetched, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	assert.Same(t, w, fetched)
	c.Release(fetched)

	// Once old's lingering reader finally releases it, it must go
	// straight to free - it is no longer indexed under its old key - and
	// must not still be shared or double-counted.
	c.Release(old)
	assert.Equal(t, int32(ShareFree), old.ShareCount())

	// The key must still resolve to w, confirming old was never
	// re-installed alongside it.
	fetched2, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)
	assert.Same(t, w, fetched2)
}

func Test_MemoryCache_TryMoveToReadable_FailsIfAlreadyPresent(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	_, err := c.GetReadablePage(0, OriginData, noopLoader)
	require.NoError(t, err)

	w := c.NewPage()
	w.Position = 0
	w.Origin = OriginData

	ok, err := c.TryMoveToReadable(w)
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_MemoryCache_DiscardPage_ReturnsToFreeAndUnindexes(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	w := c.NewPage()
	w.Position = 0
	w.Origin = OriginData
	_, err := c.MoveToReadable(w)
	require.NoError(t, err)

	c.DiscardPage(w)

	// The segment's other slots were already free; w joins them.
	stats := c.Stats()
	assert.Equal(t, 0, stats.ReadableCount)
	assert.Equal(t, memorySegmentSizes[0], stats.FreeCount)
	assert.Equal(t, int32(ShareFree), w.ShareCount())
}

func Test_MemoryCache_AcquireBuffer_GrowsSegmentsAsNeeded(t *testing.T) {
	t.Parallel()

	c := newTestCache()

	for i := 0; i < memorySegmentSizes[0]+1; i++ {
		p := c.NewPage()
		p.Position = PagePosition(i) * PageSize
		p.Origin = OriginData
		_, err := c.MoveToReadable(p)
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.Segments, 2)
}
