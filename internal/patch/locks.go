package patch

import "sync"

// tripLocks serializes work on the same trip within this process.
type tripLocks struct {
	mu    sync.Mutex
	locks map[string]*tripLock
}

type tripLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until tripID is free and returns its unlock function.
func (l *tripLocks) lock(tripID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*tripLock{}
	}
	tl, ok := l.locks[tripID]
	if !ok {
		tl = &tripLock{}
		l.locks[tripID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tripID)
		}
		l.mu.Unlock()
	}
}
