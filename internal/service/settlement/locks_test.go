package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()

	first := uuid.New()
	second := uuid.New()

	t.Run("lock is exclusive per session", func(t *testing.T) {
		require.True(t, locks.TryLock(first))
		require.False(t, locks.TryLock(first), "second acquisition must be refused, not queued")

		require.True(t, locks.TryLock(second), "other sessions are unaffected")

		locks.Unlock(first)
		locks.Unlock(second)
	})

	t.Run("unlock makes the session lockable again", func(t *testing.T) {
		require.True(t, locks.TryLock(first))
		locks.Unlock(first)
		require.True(t, locks.TryLock(first))
		locks.Unlock(first)
	})

	t.Run("unlock of a free session is harmless", func(t *testing.T) {
		locks.Unlock(uuid.New())
	})
}
