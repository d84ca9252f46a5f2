package service

import "sync"

// bookLocks serializes queue-mutating work per book. Two concurrent
// dispatch attempts on one book must never select the same registrant.
type bookLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newBookLocks() *bookLocks {
	return &bookLocks{locks: make(map[uint]*sync.Mutex)}
}

func (b *bookLocks) lock(bookID uint) func() {
	b.mu.Lock()
	l, ok := b.locks[bookID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[bookID] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}
