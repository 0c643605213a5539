package engine

import "sync"

// lockRegistry hands out one mutex per instance id so that all mutations of
// a single instance are serialized, while workflows of different entities
// proceed fully in parallel. Locks are created lazily and kept for the
// process lifetime; the per-instance footprint is one mutex.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[int64]*sync.Mutex)}
}

// acquire locks the mutex for the instance id and returns the unlock func.
func (r *lockRegistry) acquire(instanceID int64) func() {
	r.mu.Lock()
	l, ok := r.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[instanceID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
