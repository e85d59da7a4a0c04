package billing

import "sync"

// subscriberLocks hands out one mutex per subscriber so that the gate's
// read-compare-debit sequence runs serially for a given subscriber while
// unrelated subscribers proceed in parallel. Entries are never evicted; the
// map is bounded by the number of distinct subscribers seen.
type subscriberLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubscriberLocks() *subscriberLocks {
	return &subscriberLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for subscriberID and returns its release func.
func (l *subscriberLocks) Lock(subscriberID string) func() {
	l.mu.Lock()
	m, ok := l.locks[subscriberID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[subscriberID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
