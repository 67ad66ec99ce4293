package pqueue

import "errors"

var (
	// ErrEmpty is returned by a non-blocking get with nothing available, or
	// a blocking get whose timeout expires first.
	ErrEmpty = errors.New("queue is empty")

	// ErrFull is returned by a non-blocking put at capacity, or a blocking
	// put whose timeout expires while still at capacity.
	ErrFull = errors.New("queue is full")

	// ErrTaskDone is returned when TaskDone is called more times than items
	// were retrieved.
	ErrTaskDone = errors.New("task_done called too many times")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("queue is closed")

	// ErrQueueIsUsing reports that another process holds the directory lock.
	ErrQueueIsUsing = errors.New("the queue directory is used by another process")
)

func IsErrEmpty(err error) bool {
	return errors.Is(err, ErrEmpty)
}

func IsErrFull(err error) bool {
	return errors.Is(err, ErrFull)
}
