package store

import "sync"

// CheckLock guarantees that at most one worker processes a given domain at a
// time. Acquire is non-blocking: a second worker hitting the same domain
// skips the schedule instead of queueing behind the first.
type CheckLock struct {
	m      sync.Mutex
	active map[string]struct{}
}

func NewCheckLock() *CheckLock {
	return &CheckLock{
		active: map[string]struct{}{},
	}
}

func (l *CheckLock) Acquire(domain string) bool {
	l.m.Lock()
	defer l.m.Unlock()

	if _, held := l.active[domain]; held {
		return false
	}
	l.active[domain] = struct{}{}
	return true
}

func (l *CheckLock) Release(domain string) {
	l.m.Lock()
	defer l.m.Unlock()

	delete(l.active, domain)
}
