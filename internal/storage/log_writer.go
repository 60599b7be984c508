package storage

import (
	"sync"

	"go.uber.org/zap"
)

// FailureHandler is the collaborator interface consumed from higher layers
// (spec.md section 6): an object the engine uses to record asynchronous
// failures for global reporting, independent of whatever local error path
// also sees them.
type FailureHandler interface {
	Handle(err error)
}

// LogWriterQueue is the single-producer-set / single-consumer background
// writer of spec.md section 4.D. Pages enqueued by the same caller are
// written in enqueue order; across callers only "eventually written" is
// guaranteed, since every log position is pre-assigned and unique.
//
// State machine: Idle -(enqueue)-> Draining -(queue empty)-> Flushing
// -(flush ok)-> Idle, or Flushing -(I/O error)-> Failed (terminal).
type LogWriterQueue struct {
	logger *zap.Logger
	cache  *MemoryCache
	file   RandomAccessFile
	onFail FailureHandler

	mu       sync.Mutex
	notEmpty *sync.Cond
	drained  *sync.Cond
	items    []*PageBuffer
	closed   bool
	flushing bool
	err      error
	done     chan struct{}
}

// NewLogWriterQueue starts the background consumer goroutine immediately;
// there is nothing to do until the first EnqueuePage.
func NewLogWriterQueue(logger *zap.Logger, cache *MemoryCache, file RandomAccessFile, onFail FailureHandler) *LogWriterQueue {
	q := &LogWriterQueue{
		logger: logger,
		cache:  cache,
		file:   file,
		onFail: onFail,
		done:   make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// EnqueuePage hands a page (origin Log, position already assigned) to the
// writer. It rethrows synchronously whatever error poisoned the queue, so
// the next transaction touching it fails fast instead of silently losing
// the write.
func (q *LogWriterQueue) EnqueuePage(b *PageBuffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, b)
	q.notEmpty.Signal()
	return nil
}

// Wait blocks until the queue is empty and the most recent batch's flush
// has completed. The caller is responsible for ensuring no concurrent
// EnqueuePage races with Wait, typically by holding the database-wide
// write lock.
func (q *LogWriterQueue) Wait() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for (len(q.items) > 0 || q.flushing) && q.err == nil {
		q.drained.Wait()
	}
	return q.err
}

// Idle reports whether the queue currently holds no pages and is not
// mid-flush, without blocking. SetLength uses this to reject a resize
// against a queue the caller hasn't drained with Wait.
func (q *LogWriterQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && !q.flushing
}

// Dispose signals "no more writes", waits for the consumer to drain and
// exit, then returns. Pages already enqueued are still flushed before the
// consumer exits.
func (q *LogWriterQueue) Dispose() error {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.mu.Unlock()

	<-q.done

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *LogWriterQueue) run() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			close(q.done)
			return
		}

		batch := q.items
		q.items = nil
		q.flushing = true
		q.mu.Unlock()

		failErr := q.drainBatch(batch)
		if failErr == nil {
			failErr = q.file.Flush()
		}

		q.mu.Lock()
		q.flushing = false
		if failErr != nil {
			q.err = failErr
			q.drained.Broadcast()
			q.mu.Unlock()

			q.logger.Error("log writer queue failed, queue is now poisoned", zap.Error(failErr))
			if q.onFail != nil {
				q.onFail.Handle(failErr)
			}
			close(q.done)
			return
		}
		q.drained.Broadcast()
		q.mu.Unlock()
	}
}

// drainBatch writes every page in the batch to its assigned log position
// and releases the queue's reference to it, stopping at the first error so
// the consumer can terminate promptly on failure.
func (q *LogWriterQueue) drainBatch(batch []*PageBuffer) error {
	for _, b := range batch {
		_, err := q.file.WriteAt(b.Bytes, int64(b.Position))
		q.cache.Release(b)
		if err != nil {
			return err
		}
	}
	return nil
}
