package suivi

import "sync"

// handleLocks serializes coverage work per handle. The read-gaps → fetch →
// commit sequence spans two stores and is not atomic; two concurrent calls
// for the same handle would compute overlapping gaps and fetch them twice.
// Unrelated handles never contend.
type handleLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newHandleLocks() *handleLocks {
	return &handleLocks{locks: make(map[string]*sync.Mutex)}
}

func (h *handleLocks) lock(handle string) func() {
	h.mu.Lock()
	l, ok := h.locks[handle]
	if !ok {
		l = &sync.Mutex{}
		h.locks[handle] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}
