package poll

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPollLocksAreBounded(t *testing.T) {
	e, err := New(nil, "owner", WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	seen := make(map[*sync.RWMutex]struct{})
	for id := uint64(0); id < 100_000; id++ {
		_, err := e.GetPollInfo(id)
		require.ErrorIs(t, err, ErrNotFound)
		seen[e.lock(id)] = struct{}{}
	}
	require.Len(t, seen, pollLockSlots)

	require.Same(t, e.lock(7), e.lock(7))
	require.Same(t, e.lock(7), e.lock(7+pollLockSlots))
}
