package settlement

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes settlement per session. TryLock never waits: an
// overlapping settlement for the same session is skipped, the next tick
// catches up.
type sessionLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[uuid.UUID]struct{})}
}

func (l *sessionLocks) TryLock(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[id]; taken {
		return false
	}

	l.held[id] = struct{}{}
	return true
}

func (l *sessionLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, id)
}
