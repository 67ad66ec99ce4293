// Package pqueue provides a single-process, crash-resilient persistent FIFO
// queue. Records are appended to sequentially numbered chunk files and the
// read/write cursors are tracked in an atomically replaced metadata file, so
// the queue contents survive process restarts; a truncate-on-open procedure
// discards anything written after the last committed metadata snapshot.
package pqueue

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/s2"
)

const fileLockName = "FLOCK"

// Queue is a persistent multi-producer, multi-consumer FIFO queue of T.
// One Queue instance owns its directory exclusively for its lifetime; a
// second Open of the same directory fails with ErrQueueIsUsing until Close.
type Queue[T any] struct {
	core    *BlockingCore
	backing *diskBacking

	maxSize     int
	compression bool
	encode      func(v any) ([]byte, error)
	decode      func(data []byte, v any) error

	fileLock  *flock.Flock
	closeOnce sync.Once
	closeErr  error
}

// Open creates or reopens the persistent queue stored in options.DirPath.
// On reopen it runs the crash-recovery procedure: garbage past the head
// cursor is truncated away and the unfinished-task counter is seeded with
// the recovered size.
func Open[T any](options Options) (*Queue[T], error) {
	if err := checkOptions(&options); err != nil {
		return nil, err
	}

	if _, err := os.Stat(options.DirPath); err != nil {
		if err := os.MkdirAll(options.DirPath, os.ModePerm); err != nil {
			return nil, err
		}
	}

	// 目录锁：同一个目录同一时间只允许一个进程持有
	fileLock := flock.New(filepath.Join(options.DirPath, fileLockName))
	hold, err := fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !hold {
		return nil, ErrQueueIsUsing
	}

	backing, err := openBacking(options)
	if err != nil {
		fileLock.Unlock()
		return nil, err
	}

	q := &Queue[T]{
		core:        NewBlockingCore(backing, options.MaxSize, int(backing.meta.Size)),
		backing:     backing,
		maxSize:     options.MaxSize,
		compression: backing.meta.Compression,
		encode:      options.Encode,
		decode:      options.Decode,
		fileLock:    fileLock,
	}
	return q, nil
}

// Put appends an item, blocking while the queue is at capacity. The item
// and the updated metadata are durable on disk before Put returns.
func (q *Queue[T]) Put(item T) error {
	return q.put(item, true, 0)
}

// PutTimeout is Put bounded by a timeout; it fails with ErrFull when the
// queue is still at capacity after timeout.
func (q *Queue[T]) PutTimeout(item T, timeout time.Duration) error {
	return q.put(item, true, timeout)
}

// PutNoWait appends an item or fails immediately with ErrFull.
func (q *Queue[T]) PutNoWait(item T) error {
	return q.put(item, false, 0)
}

func (q *Queue[T]) put(item T, block bool, timeout time.Duration) error {
	rec, err := q.encodeItem(item)
	if err != nil {
		return err
	}
	return q.core.Put(rec, block, timeout)
}

// Get removes and returns the front item, blocking while the queue is
// empty. The metadata update is deferred until TaskDone to amortize
// writes across the retrieve/acknowledge pair.
func (q *Queue[T]) Get() (T, error) {
	return q.get(true, 0)
}

// GetTimeout is Get bounded by a timeout; it fails with ErrEmpty when the
// queue is still empty after timeout.
func (q *Queue[T]) GetTimeout(timeout time.Duration) (T, error) {
	return q.get(true, timeout)
}

// GetNoWait removes and returns the front item or fails immediately with
// ErrEmpty.
func (q *Queue[T]) GetNoWait() (T, error) {
	return q.get(false, 0)
}

func (q *Queue[T]) get(block bool, timeout time.Duration) (T, error) {
	rec, err := q.core.Get(block, timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	return q.decodeItem(rec)
}

// PeekNoWait returns the front item without removing it, or ErrEmpty.
func (q *Queue[T]) PeekNoWait() (T, error) {
	rec, err := q.core.Peek()
	if err != nil {
		var zero T
		return zero, err
	}
	return q.decodeItem(rec)
}

// Size returns the number of items currently persisted and not yet
// retrieved.
func (q *Queue[T]) Size() int {
	return q.core.Len()
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Size() == 0
}

// IsFull reports whether the queue is at its configured capacity. It is
// always false for an unbounded queue.
func (q *Queue[T]) IsFull() bool {
	return q.maxSize > 0 && q.Size() >= q.maxSize
}

// TaskDone acknowledges one previously retrieved item, persisting any
// deferred metadata first. It fails with ErrTaskDone when called more
// times than items were retrieved.
func (q *Queue[T]) TaskDone() error {
	return q.core.TaskDone()
}

// Join blocks until every item put into the queue has been retrieved and
// acknowledged via TaskDone.
func (q *Queue[T]) Join() {
	q.core.Join()
}

// Close wakes all blocked callers, flushes a dirty metadata snapshot,
// releases the chunk file handles and the directory lock. The queue can be
// reopened afterwards.
func (q *Queue[T]) Close() error {
	q.closeOnce.Do(func() {
		q.core.Close()
		q.closeErr = q.core.locked(q.backing.close)
		if err := q.fileLock.Unlock(); err != nil && q.closeErr == nil {
			q.closeErr = err
		}
	})
	return q.closeErr
}

func (q *Queue[T]) encodeItem(item T) ([]byte, error) {
	data, err := q.encode(item)
	if err != nil {
		return nil, err
	}
	if q.compression {
		data = s2.Encode(nil, data)
	}
	return data, nil
}

func (q *Queue[T]) decodeItem(rec []byte) (T, error) {
	var item T
	if q.compression {
		var err error
		if rec, err = s2.Decode(nil, rec); err != nil {
			return item, err
		}
	}
	if err := q.decode(rec, &item); err != nil {
		return item, err
	}
	return item, nil
}
