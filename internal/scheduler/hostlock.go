package scheduler

import "sync"

// hostLocks hands out one mutex per host name. Entries are dropped once no
// goroutine holds or waits on them.
type hostLocks struct {
	mu    sync.Mutex
	locks map[string]*hostLock
}

type hostLock struct {
	sync.Mutex
	refs int
}

// defaultLocks is shared by every Scheduler in the process.
var defaultLocks = newHostLocks()

func newHostLocks() *hostLocks {
	return &hostLocks{locks: make(map[string]*hostLock)}
}

// lock blocks until host is free and returns the matching unlock.
func (l *hostLocks) lock(host string) func() {
	l.mu.Lock()
	hl, ok := l.locks[host]
	if !ok {
		hl = &hostLock{}
		l.locks[host] = hl
	}
	hl.refs++
	l.mu.Unlock()

	hl.Lock()
	return func() {
		hl.Unlock()

		l.mu.Lock()
		hl.refs--
		if hl.refs == 0 {
			delete(l.locks, host)
		}
		l.mu.Unlock()
	}
}

func (l *hostLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
