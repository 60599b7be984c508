package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// markInvalidStateRetries and markInvalidStateBackoff bound the retry loop
// MarkAsInvalidState runs against a failing read-modify-write of page 0
// (spec.md section 7, error kind 2 - a sharing/locking failure on the
// data file). The core has no portable way to distinguish that from any
// other transient I/O error on the handle, so every attempt's error is
// treated the same way: retried up to the bound, then returned.
const (
	markInvalidStateRetries = 60
	markInvalidStateBackoff = 5 * time.Millisecond
)

// DiskService owns both file handles, the shared memory cache and the
// lazily-created log writer queue, and orchestrates them on behalf of
// readers and writers (spec.md section 4.E).
type DiskService struct {
	logger *zap.Logger

	dataFactory *FileFactory
	logFactory  *FileFactory
	cache       *MemoryCache
	onFail      FailureHandler

	readOnly  bool
	collation uint8

	// dataLength/logLength track the highest reserved byte offset in
	// each file; GetVirtualLength adds PageSize back on read. Shared
	// 64-bit counters, updated only via atomic add/exchange.
	dataLength int64
	logLength  int64

	queueOnce    sync.Once
	queue        *LogWriterQueue
	queueInitErr error
}

// Open binds a DiskService to settings, creating the header page on first
// open and recording both files' initial virtual lengths (spec.md section
// 4.E, "Initialization").
func Open(logger *zap.Logger, settings Settings, onFail FailureHandler) (*DiskService, error) {
	d := &DiskService{
		logger:      logger,
		dataFactory: NewFileFactory(settings.Filename, settings.ReadOnly),
		logFactory:  NewFileFactory(settings.LogPath(), settings.ReadOnly),
		cache:       NewMemoryCache(logger),
		onFail:      onFail,
		readOnly:    settings.ReadOnly,
		collation:   settings.Collation,
	}

	dataHandle, err := d.dataFactory.Access()
	if err != nil {
		return nil, fmt.Errorf("storage: open data file: %w", err)
	}

	length, err := dataHandle.Length()
	if err != nil {
		return nil, fmt.Errorf("storage: stat data file: %w", err)
	}

	if length == 0 {
		if d.readOnly {
			return nil, ErrReadOnly
		}
		header := make([]byte, PageSize)
		WriteCollationPragma(header, settings.Collation)
		if _, err := dataHandle.WriteAt(header, 0); err != nil {
			return nil, fmt.Errorf("storage: write initial header page: %w", err)
		}
		if err := dataHandle.Flush(); err != nil {
			return nil, fmt.Errorf("storage: flush initial header page: %w", err)
		}
		length = PageSize
	}
	d.dataLength = length - PageSize

	if d.logFactory.Exists() {
		logLen, err := d.logFactory.GetLength()
		if err != nil {
			return nil, fmt.Errorf("storage: stat log file: %w", err)
		}
		d.logLength = logLen - PageSize
	} else {
		d.logLength = -PageSize
	}

	d.logger.Sugar().With(
		"data_file", settings.Filename,
		"data_virtual_length", d.GetVirtualLength(OriginData),
		"log_virtual_length", d.GetVirtualLength(OriginLog),
	).Debug("disk service opened")

	return d, nil
}

// GetReader returns a non-thread-safe reader bound to both file handles
// and the shared cache. Callers should obtain one per executing
// transaction.
func (d *DiskService) GetReader() *DiskReader {
	return &DiskReader{svc: d}
}

// NewPage delegates to the cache.
func (d *DiskService) NewPage() (*PageBuffer, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}
	return d.cache.NewPage(), nil
}

// WriteAsync reserves a log position for each writable page, promotes it
// to readable and enqueues it on the writer queue, returning how many
// pages were successfully enqueued.
func (d *DiskService) WriteAsync(pages []*PageBuffer) (int, error) {
	if d.readOnly {
		return 0, ErrReadOnly
	}

	queue, err := d.logWriter()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range pages {
		pos := atomic.AddInt64(&d.logLength, PageSize)
		p.Origin = OriginLog
		p.Position = PagePosition(pos)

		if _, err := d.cache.MoveToReadable(p); err != nil {
			return count, fmt.Errorf("storage: promote page for async write: %w", err)
		}
		if err := queue.EnqueuePage(p); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Write synchronously writes exclusively-held writable pages directly to
// origin (Data if unset), updating the file's recorded length and
// flushing once all pages are written. Unlike WriteAsync, a page written
// this way is never promoted into the readable index: it bypasses the
// cache entirely and is returned to the free pool once durable.
func (d *DiskService) Write(pages []*PageBuffer, origin PageOrigin) error {
	if d.readOnly {
		return ErrReadOnly
	}
	if origin == OriginUnset {
		origin = OriginData
	}

	factory := d.factoryFor(origin)
	handle, err := factory.Access()
	if err != nil {
		return err
	}

	lengthField := d.lengthFieldFor(origin)
	for _, p := range pages {
		if !p.IsWritable() {
			return ErrPageShared
		}
		if p.Position == PositionUnset {
			p.Position = PagePosition(atomic.AddInt64(lengthField, PageSize))
		}
		p.Origin = origin
		if int64(p.Position)%PageSize != 0 {
			return ErrMisalignedPosition
		}
		if _, err := handle.WriteAt(p.Bytes, int64(p.Position)); err != nil {
			return fmt.Errorf("storage: direct write page %s@%d: %w", origin, p.Position, err)
		}
		atomicMax(lengthField, int64(p.Position))
	}

	if err := handle.Flush(); err != nil {
		return err
	}

	for _, p := range pages {
		d.cache.DiscardPage(p)
	}
	return nil
}

// SetLength synchronously truncates or extends origin's file. Resizing
// the log file requires the writer queue to be idle; SetLength does not
// wait for it, the caller is expected to have already called Wait.
func (d *DiskService) SetLength(length int64, origin PageOrigin) error {
	if d.readOnly {
		return ErrReadOnly
	}
	if origin == OriginUnset {
		origin = OriginData
	}

	if origin == OriginLog && d.queue != nil && !d.queue.Idle() {
		return ErrQueueNotEmpty
	}

	handle, err := d.factoryFor(origin).Access()
	if err != nil {
		return err
	}
	if err := handle.SetLength(length); err != nil {
		return err
	}

	atomic.StoreInt64(d.lengthFieldFor(origin), length-PageSize)
	return nil
}

// ReadFull returns a sequential, cache-bypassing scanner over origin's
// whole file, one page at a time.
func (d *DiskService) ReadFull(origin PageOrigin) (*PageScanner, error) {
	handle, err := d.factoryFor(origin).Access()
	if err != nil {
		return nil, err
	}
	length, err := handle.Length()
	if err != nil {
		return nil, err
	}
	return &PageScanner{
		file:   handle,
		origin: origin,
		length: length,
		buf:    make([]byte, PageSize),
	}, nil
}

// GetVirtualLength returns origin's last reserved offset plus PageSize,
// which may exceed the kernel-visible file length while the async writer
// lags behind.
func (d *DiskService) GetVirtualLength(origin PageOrigin) int64 {
	return atomic.LoadInt64(d.lengthFieldFor(origin)) + PageSize
}

// MaxItemsCount is the conservative ceiling spec.md section 6 defines for
// higher layers to detect pointer-loop corruption:
// ((dataLen + logLen) / PAGE_SIZE + 10) * 255.
func (d *DiskService) MaxItemsCount() uint64 {
	total := d.GetVirtualLength(OriginData) + d.GetVirtualLength(OriginLog)
	return uint64(total/PageSize+maxItemsConstant) * maxItemsMultiplier
}

// MarkAsInvalidState sets the single invalid-state byte in page 0 of the
// data file, used during abnormal close to request recovery on next open.
// It retries a bounded number of times with backoff on any failure of
// that read-modify-write, since a sharing violation on the handle is not
// distinguishable from other transient I/O errors.
func (d *DiskService) MarkAsInvalidState() error {
	if d.readOnly {
		return ErrReadOnly
	}

	var lastErr error
	for attempt := 0; attempt < markInvalidStateRetries; attempt++ {
		err := d.markInvalidStateOnce()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt > 0 && attempt%10 == 0 {
			d.logger.Warn("retrying mark-invalid-state", zap.Int("attempt", attempt), zap.Error(err))
		}
		time.Sleep(time.Duration(attempt+1) * markInvalidStateBackoff)
	}
	return fmt.Errorf("storage: mark invalid state after %d attempts: %w", markInvalidStateRetries, lastErr)
}

func (d *DiskService) markInvalidStateOnce() error {
	handle, err := d.dataFactory.Access()
	if err != nil {
		return err
	}

	page0 := make([]byte, PageSize)
	if _, err := handle.ReadAt(page0, 0); err != nil {
		return err
	}
	SetInvalidState(page0)
	if _, err := handle.WriteAt(page0, 0); err != nil {
		return err
	}
	return handle.Flush()
}

// DiscardDirtyPages returns writable pages straight to free, for
// transactions that wrote new content and then rolled back.
func (d *DiskService) DiscardDirtyPages(pages []*PageBuffer) {
	for _, p := range pages {
		d.cache.DiscardPage(p)
	}
}

// DiscardCleanPages promotes writable pages that were not actually
// modified back to readable where possible (so a concurrent reader
// doesn't redundantly reload them), discarding any that lose the race to
// an existing readable entry.
func (d *DiskService) DiscardCleanPages(pages []*PageBuffer) {
	for _, p := range pages {
		ok, err := d.cache.TryMoveToReadable(p)
		if err != nil || !ok {
			d.cache.DiscardPage(p)
		}
	}
}

// Close waits on the writer queue if one was created, closes both file
// factories, and deletes the log file if it exists but holds no pages.
// Every close error is aggregated via multierr rather than discarding all
// but the last.
func (d *DiskService) Close() error {
	var errs error

	if d.queue != nil {
		if err := d.queue.Dispose(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("storage: log writer queue: %w", err))
		}
	}

	if err := d.dataFactory.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := d.logFactory.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	if d.logFactory.Exists() && atomic.LoadInt64(&d.logLength) == -PageSize {
		if err := d.logFactory.Delete(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (d *DiskService) factoryFor(origin PageOrigin) *FileFactory {
	if origin == OriginLog {
		return d.logFactory
	}
	return d.dataFactory
}

func (d *DiskService) lengthFieldFor(origin PageOrigin) *int64 {
	if origin == OriginLog {
		return &d.logLength
	}
	return &d.dataLength
}

func (d *DiskService) logWriter() (*LogWriterQueue, error) {
	d.queueOnce.Do(func() {
		handle, err := d.logFactory.Access()
		if err != nil {
			d.queueInitErr = fmt.Errorf("storage: open log file: %w", err)
			return
		}
		d.queue = NewLogWriterQueue(d.logger, d.cache, handle, d.onFail)
	})
	return d.queue, d.queueInitErr
}

// Wait blocks until the log writer queue, if created, is drained and its
// most recent flush has completed. A DiskService that has never written
// to the log returns immediately.
func (d *DiskService) Wait() error {
	if d.queue == nil {
		return nil
	}
	return d.queue.Wait()
}

func atomicMax(addr *int64, val int64) {
	for {
		old := atomic.LoadInt64(addr)
		if val <= old {
			return
		}
		if atomic.CompareAndSwapInt64(addr, old, val) {
			return
		}
	}
}
