package synccell

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kolkov/rescell/internal/cell/borrow"
)

// maxReaders is the semaphore capacity. A reader takes one unit, the writer
// takes all of them.
const maxReaders = 1 << 30

// rwLock is a FIFO reader/writer lock.
//
// semaphore.Weighted serves waiters in arrival order and never lets a
// request overtake an earlier one, so a writer waiting behind readers holds
// back readers that arrive after it. Consecutive readers at the head of the
// queue are admitted together.
//
// readers and writer mirror the semaphore for State; they are updated
// inside the critical section and may lag by one transition when read
// concurrently.
type rwLock struct {
	sem     *semaphore.Weighted
	readers atomic.Int32
	writer  atomic.Bool
	waiting atomic.Int32
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(maxReaders)}
}

func weight(kind borrow.Kind) int64 {
	if kind == borrow.Exclusive {
		return maxReaders
	}
	return 1
}

// tryAcquire takes the lock without waiting. It fails if the lock is held
// incompatibly or if anyone is already queued.
func (l *rwLock) tryAcquire(kind borrow.Kind) bool {
	if !l.sem.TryAcquire(weight(kind)) {
		return false
	}
	l.acquired(kind)
	return true
}

// acquire waits for the lock or for ctx to be done.
func (l *rwLock) acquire(ctx context.Context, kind borrow.Kind) error {
	if l.tryAcquire(kind) {
		return nil
	}

	l.waiting.Add(1)
	err := l.sem.Acquire(ctx, weight(kind))
	l.waiting.Add(-1)
	if err != nil {
		return err
	}

	l.acquired(kind)
	return nil
}

func (l *rwLock) acquired(kind borrow.Kind) {
	if kind == borrow.Exclusive {
		l.writer.Store(true)
	} else {
		l.readers.Add(1)
	}
}

// release gives the lock back. The mirror is cleared before the semaphore
// so the next holder never observes a stale writer.
func (l *rwLock) release(kind borrow.Kind) {
	if kind == borrow.Exclusive {
		l.writer.Store(false)
	} else {
		l.readers.Add(-1)
	}
	l.sem.Release(weight(kind))
}

func (l *rwLock) state() borrow.State {
	return borrow.State{
		Readers: int(l.readers.Load()),
		Writer:  l.writer.Load(),
		Waiting: int(l.waiting.Load()),
	}
}
