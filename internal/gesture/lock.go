package gesture

import "sync"

// Lock is the interaction lock shared by all gesture controllers of one
// client. Rotating, scaling and panning are mutually exclusive modes; a
// controller may only activate while it holds the lock.
type Lock struct {
	mu     sync.Mutex
	holder string
}

// TryAcquire takes the lock for the named holder. Re-acquiring by the same
// holder succeeds.
func (l *Lock) TryAcquire(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" && l.holder != holder {
		return false
	}
	l.holder = holder
	return true
}

// Release frees the lock if held by the named holder.
func (l *Lock) Release(holder string) {
	l.mu.Lock()
	if l.holder == holder {
		l.holder = ""
	}
	l.mu.Unlock()
}

// Held reports whether any gesture currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder != ""
}
