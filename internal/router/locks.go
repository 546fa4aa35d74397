package router

import "sync"

// userLocks hands out one mutex per user key and forgets it once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (u *userLocks) lock(key string) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[key]
	if !ok {
		l = &userLock{}
		u.locks[key] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, key)
		}
		u.mu.Unlock()
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
