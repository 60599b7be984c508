package storage

// PageSize is the fixed size of every page, in memory and on disk. Every
// persistent unit - header, index nodes, data blocks, free lists - is a
// page of exactly this many bytes.
const PageSize = 8192

// PInvalidDataFileState is the byte offset within page 0 of the data file
// that holds the invalid-state flag: a single bit set by MarkAsInvalidState
// and read by the engine's recovery check on the next open.
const PInvalidDataFileState = 32

// PCollationPragma is the byte offset within page 0 of the data file where
// the collation pragma chosen at creation time is recorded.
const PCollationPragma = 33

// memorySegmentSizes is the ordered list of segment sizes the memory cache
// allocates in. A new segment is allocated only once both the free pool and
// the recyclable readable pool are exhausted; once allocated a segment size
// is never reused as a shrink target - segments are never freed.
var memorySegmentSizes = []int{1000, 1000, 1000, 1000, 1000}

// maxItemsMultiplier and maxItemsConstant implement spec section 6's
// MAX_ITEMS_COUNT = ((dataLen + logLen) / PAGE_SIZE + 10) * 255 ceiling.
const (
	maxItemsConstant   = 10
	maxItemsMultiplier = 255
)
