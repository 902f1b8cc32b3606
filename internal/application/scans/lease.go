package scans

import "sync"

// leases serializes scans of the same project key inside this process. The
// zero value is ready to use.
type leases struct {
	mu sync.Mutex
	m  map[string]*lease
}

type lease struct {
	mu   sync.Mutex
	refs int
}

// acquire blocks until key is free and returns the matching release.
func (l *leases) acquire(key string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*lease)
	}
	e, ok := l.m[key]
	if !ok {
		e = &lease{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
