// Package storetest checks that a poll.Store implementation honours the
// contract the engine relies on.
package storetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/poll"
)

// NewStoreFunc returns an empty store. Cleanup should be registered on t.
type NewStoreFunc func(t *testing.T) poll.Store

// Run executes every conformance test against stores created by newStore.
func Run(t *testing.T, newStore NewStoreFunc) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GaplessIDs", func(t *testing.T) { testGaplessIDs(t, newStore(t)) })
	t.Run("RecordVote", func(t *testing.T) { testRecordVote(t, newStore(t)) })
	t.Run("Flags", func(t *testing.T) { testFlags(t, newStore(t)) })
	t.Run("Decryptors", func(t *testing.T) { testDecryptors(t, newStore(t)) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

// NewPoll returns a poll record with the given number of options.
func NewPoll(creator poll.Identity, options int) *poll.Poll {
	p := &poll.Poll{
		Title:       "title",
		Description: "description",
		StartTime:   100,
		EndTime:     200,
		Creator:     creator,
	}
	for i := 0; i < options; i++ {
		p.Options = append(p.Options, fmt.Sprintf("option %d", i))
		p.Tally = append(p.Tally, poll.Ciphertext{byte(i)})
	}
	return p
}

func testCreateAndGet(t *testing.T, store poll.Store) {
	in := NewPoll("alice", 3)
	id, err := store.CreatePoll(in)
	require.NoError(t, err)
	require.Zero(t, id)

	out, err := store.GetPoll(id)
	require.NoError(t, err)
	require.Equal(t, id, out.ID)
	require.Equal(t, in.Title, out.Title)
	require.Equal(t, in.Description, out.Description)
	require.Equal(t, in.Options, out.Options)
	require.Equal(t, in.StartTime, out.StartTime)
	require.Equal(t, in.EndTime, out.EndTime)
	require.Equal(t, in.Creator, out.Creator)
	require.Equal(t, in.Tally, out.Tally)
	require.False(t, out.Closed)
	require.False(t, out.Decrypted)
	require.Zero(t, out.TotalVoters)

	// returned records do not alias the store
	out.Options[0] = "changed"
	out.Tally[0][0] = 0xff
	again, err := store.GetPoll(id)
	require.NoError(t, err)
	require.Equal(t, in.Options, again.Options)
	require.Equal(t, in.Tally, again.Tally)

	options, err := store.GetOptions(id)
	require.NoError(t, err)
	require.Equal(t, in.Options, options)
}

func testGaplessIDs(t *testing.T, store poll.Store) {
	const n = 20
	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.CreatePoll(NewPoll("alice", 2))
			if err != nil {
				t.Errorf("create poll: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	for i := uint64(0); i < n; i++ {
		require.True(t, seen[i], "missing id %d", i)
	}
	count, err := store.PollCount()
	require.NoError(t, err)
	require.EqualValues(t, n, count)
}

func testRecordVote(t *testing.T, store poll.Store) {
	id, err := store.CreatePoll(NewPoll("alice", 2))
	require.NoError(t, err)

	require.NoError(t, store.RecordVote(id, "bob", 1, poll.Ciphertext("sum")))
	p, err := store.GetPoll(id)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.TotalVoters)
	require.Equal(t, poll.Ciphertext("sum"), p.Tally[1])
	require.Equal(t, poll.Ciphertext{0}, p.Tally[0])

	voted, err := store.HasVoted(id, "bob")
	require.NoError(t, err)
	require.True(t, voted)
	voted, err = store.HasVoted(id, "carol")
	require.NoError(t, err)
	require.False(t, voted)

	err = store.RecordVote(id, "bob", 0, poll.Ciphertext("again"))
	require.ErrorIs(t, err, poll.ErrAlreadyVoted)
	err = store.RecordVote(id, "carol", 2, poll.Ciphertext("out of range"))
	require.ErrorIs(t, err, poll.ErrInvalidOption)

	// failed writes leave no trace
	p, err = store.GetPoll(id)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.TotalVoters)
	require.Equal(t, poll.Ciphertext{0}, p.Tally[0])
	voted, err = store.HasVoted(id, "carol")
	require.NoError(t, err)
	require.False(t, voted)
}

func testFlags(t *testing.T, store poll.Store) {
	id, err := store.CreatePoll(NewPoll("alice", 2))
	require.NoError(t, err)
	require.NoError(t, store.MarkClosed(id))
	require.NoError(t, store.MarkDecrypted(id))
	p, err := store.GetPoll(id)
	require.NoError(t, err)
	require.True(t, p.Closed)
	require.True(t, p.Decrypted)
}

func testDecryptors(t *testing.T, store poll.Store) {
	ok, err := store.IsDecryptor("alice")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetDecryptor("alice", true))
	ok, err = store.IsDecryptor("alice")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.SetDecryptor("alice", false))
	ok, err = store.IsDecryptor("alice")
	require.NoError(t, err)
	require.False(t, ok)

	// removing a non member is fine
	require.NoError(t, store.SetDecryptor("bob", false))
}

func testGrants(t *testing.T, store poll.Store) {
	id, err := store.CreatePoll(NewPoll("alice", 2))
	require.NoError(t, err)

	grantees, err := store.Grantees(id, 0)
	require.NoError(t, err)
	require.Empty(t, grantees)

	require.NoError(t, store.AddGrant(id, 0, "carol"))
	require.NoError(t, store.AddGrant(id, 0, "bob"))
	require.NoError(t, store.AddGrant(id, 0, "bob"))
	require.NoError(t, store.AddGrant(id, 1, "dave"))

	ok, err := store.HasGrant(id, 0, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.HasGrant(id, 1, "bob")
	require.NoError(t, err)
	require.False(t, ok)

	grantees, err = store.Grantees(id, 0)
	require.NoError(t, err)
	require.Equal(t, []poll.Identity{"bob", "carol"}, grantees)
}

func testNotFound(t *testing.T, store poll.Store) {
	_, err := store.GetPoll(0)
	require.ErrorIs(t, err, poll.ErrNotFound)
	_, err = store.GetOptions(0)
	require.ErrorIs(t, err, poll.ErrNotFound)
	_, err = store.HasVoted(0, "bob")
	require.ErrorIs(t, err, poll.ErrNotFound)
	require.ErrorIs(t, store.RecordVote(0, "bob", 0, nil), poll.ErrNotFound)
	require.ErrorIs(t, store.MarkClosed(0), poll.ErrNotFound)
	require.ErrorIs(t, store.MarkDecrypted(0), poll.ErrNotFound)
	count, err := store.PollCount()
	require.NoError(t, err)
	require.Zero(t, count)
}
