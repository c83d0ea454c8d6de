package turn

import "sync"

// threadLocks hands out one mutex per thread id. Entries are dropped once no
// submission holds or waits on them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (l *threadLocks) lock(threadID string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[threadID]
	if !ok {
		entry = &threadLock{}
		l.locks[threadID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, threadID)
		}
		l.mu.Unlock()
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
