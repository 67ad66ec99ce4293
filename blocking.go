package pqueue

import (
	"sync"
	"time"
)

// Backing is the storage a BlockingCore coordinates access to. The core
// never calls Push/Pop/Peek without holding its lock, so implementations
// need no locking of their own.
//
// Sync persists any bookkeeping the backing deferred on the read path; the
// core calls it from TaskDone before decrementing the unfinished count.
type Backing interface {
	Len() int
	Push(rec []byte) error
	Peek() ([]byte, error)
	Pop() ([]byte, error)
	Sync() error
}

// BlockingCore layers capacity-bounded, multi-producer/multi-consumer
// blocking semantics over a Backing. It is independent of persistence: the
// queue plugs in its chunk-file backing, tests plug in an in-memory one.
//
// Waiters park on a notify channel that is closed-and-replaced on every
// signal (one closed channel wakes every waiter, each of which retakes the
// lock and rechecks its predicate), so wake-ups can be bounded by a timer
// without a condition variable.
type BlockingCore struct {
	mu       sync.Mutex
	backing  Backing
	capacity int

	// Enqueued或Retrieved状态的条数；为0时Join放行
	unfinished int

	closed   bool
	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

// NewBlockingCore wraps backing with blocking semantics. capacity <= 0
// means unbounded. unfinished seeds the Join/TaskDone counter; a reopened
// persistent queue passes its recovered size.
func NewBlockingCore(backing Backing, capacity int, unfinished int) *BlockingCore {
	c := &BlockingCore{
		backing:    backing,
		capacity:   capacity,
		unfinished: unfinished,
		notEmpty:   make(chan struct{}),
		notFull:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	if unfinished == 0 {
		close(c.done)
	}
	return c
}

// signal 唤醒所有等待者（关闭旧通道，换新的）
func signal(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

// waitSignal parks on ch until a signal or the deadline. Zero deadline
// means wait forever. Must be called without the lock held.
func waitSignal(ch <-chan struct{}, deadline time.Time) bool {
	if deadline.IsZero() {
		<-ch
		return true
	}
	d := time.Until(deadline)
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// Put stores one record. With block=false it fails immediately with
// ErrFull at capacity; with a positive timeout it gives up with ErrFull
// once the timeout expires while still full.
func (c *BlockingCore) Put(rec []byte, block bool, timeout time.Duration) error {
	var deadline time.Time
	if block && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.capacity <= 0 || c.backing.Len() < c.capacity {
			break
		}
		if !block {
			c.mu.Unlock()
			return ErrFull
		}
		ch := c.notFull
		c.mu.Unlock()
		if !waitSignal(ch, deadline) {
			return ErrFull
		}
		c.mu.Lock()
	}

	if err := c.backing.Push(rec); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.unfinished == 0 {
		c.done = make(chan struct{})
	}
	c.unfinished++
	signal(&c.notEmpty)
	c.mu.Unlock()
	return nil
}

// Get removes and returns the front record. With block=false it fails
// immediately with ErrEmpty when nothing is available; with a positive
// timeout it gives up with ErrEmpty once the timeout expires.
func (c *BlockingCore) Get(block bool, timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if block && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if c.backing.Len() > 0 {
			break
		}
		if !block {
			c.mu.Unlock()
			return nil, ErrEmpty
		}
		ch := c.notEmpty
		c.mu.Unlock()
		if !waitSignal(ch, deadline) {
			return nil, ErrEmpty
		}
		c.mu.Lock()
	}

	rec, err := c.backing.Pop()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	signal(&c.notFull)
	c.mu.Unlock()
	return rec, nil
}

// Peek returns the front record without removing it.
func (c *BlockingCore) Peek() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.backing.Len() == 0 {
		return nil, ErrEmpty
	}
	return c.backing.Peek()
}

// TaskDone acknowledges one retrieved record: it first gives the backing a
// chance to persist deferred bookkeeping, then decrements the unfinished
// count, releasing Join when it reaches zero. Calling it more times than
// records were retrieved fails with ErrTaskDone.
func (c *BlockingCore) TaskDone() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.unfinished == 0 {
		return ErrTaskDone
	}
	if err := c.backing.Sync(); err != nil {
		return err
	}
	c.unfinished--
	if c.unfinished == 0 {
		close(c.done)
	}
	return nil
}

// Join blocks until every record ever stored has been acknowledged via
// TaskDone.
func (c *BlockingCore) Join() {
	for {
		c.mu.Lock()
		if c.unfinished == 0 {
			c.mu.Unlock()
			return
		}
		ch := c.done
		c.mu.Unlock()
		<-ch
	}
}

// Len returns the number of records currently stored.
func (c *BlockingCore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backing.Len()
}

// Close wakes every blocked Put/Get with ErrClosed. It does not touch the
// backing; the owner closes that itself.
func (c *BlockingCore) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		signal(&c.notEmpty)
		signal(&c.notFull)
	}
	c.mu.Unlock()
}

// locked runs fn while holding the core lock, serializing it against every
// queue operation.
func (c *BlockingCore) locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}
