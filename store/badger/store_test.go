package badger_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/pkg/homomorphic"
	"github.com/cmwaters/privpoll/poll"
	"github.com/cmwaters/privpoll/poll/storetest"
	"github.com/cmwaters/privpoll/store/badger"
)

func TestInMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) poll.Store {
		store, err := badger.New(badger.WithLogger(zerolog.Nop()))
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, store.Close()) })
		return store
	})
}

func TestDiskStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) poll.Store {
		store, err := badger.New(badger.WithDataDir(t.TempDir()), badger.WithGc(false))
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, store.Close()) })
		return store
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := badger.New(badger.WithDataDir(dir))
	require.NoError(t, err)

	id, err := store.CreatePoll(storetest.NewPoll("alice", 2))
	require.NoError(t, err)
	require.NoError(t, store.RecordVote(id, "bob", 1, poll.Ciphertext("tally")))
	require.NoError(t, store.MarkClosed(id))
	require.NoError(t, store.SetDecryptor("owner", true))
	require.NoError(t, store.AddGrant(id, 1, "carol"))
	require.NoError(t, store.Close())

	store, err = badger.New(badger.WithDataDir(dir))
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	p, err := store.GetPoll(id)
	require.NoError(t, err)
	require.True(t, p.Closed)
	require.EqualValues(t, 1, p.TotalVoters)
	require.Equal(t, poll.Ciphertext("tally"), p.Tally[1])

	voted, err := store.HasVoted(id, "bob")
	require.NoError(t, err)
	require.True(t, voted)
	ok, err := store.IsDecryptor("owner")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.HasGrant(id, 1, "carol")
	require.NoError(t, err)
	require.True(t, ok)

	// ids continue where they left off
	next, err := store.CreatePoll(storetest.NewPoll("alice", 2))
	require.NoError(t, err)
	require.EqualValues(t, 1, next)
}

func TestEngineOnBadger(t *testing.T) {
	dir := t.TempDir()
	secret := homomorphic.GenerateKey()
	scheme := homomorphic.NewScheme(secret, 1000)
	voter := homomorphic.NewVoter(scheme.PublicKey())

	open := func(scheme poll.CiphertextOps) (*poll.Engine, *badger.Store) {
		store, err := badger.New(badger.WithDataDir(dir), badger.WithGc(false))
		require.NoError(t, err)
		engine, err := poll.New(scheme, "owner", poll.WithStore(store), poll.WithLogger(zerolog.Nop()))
		require.NoError(t, err)
		return engine, store
	}

	engine, store := open(scheme)
	id, err := engine.CreatePoll("T", "D", []string{"A", "B"}, 3600, "alice")
	require.NoError(t, err)
	for i, name := range []poll.Identity{"alice", "bob", "carol"} {
		ballot, ballotProof, err := voter.Ballot(poll.BallotContext{PollID: id, Voter: name})
		require.NoError(t, err)
		require.NoError(t, engine.Vote(id, i%2, ballot, ballotProof, name))
	}
	require.NoError(t, engine.AllowDecryptorAccess(id, 0, "owner", "owner"))
	require.NoError(t, store.Close())

	// a restarted node holds the same key but none of the grants
	restarted := homomorphic.NewScheme(secret, 1000)
	engine, store = open(restarted)
	defer func() { require.NoError(t, store.Close()) }()
	require.NoError(t, engine.RestoreGrants())

	ballot, ballotProof, err := voter.Ballot(poll.BallotContext{PollID: id, Voter: "alice"})
	require.NoError(t, err)
	require.ErrorIs(t, engine.Vote(id, 1, ballot, ballotProof, "alice"), poll.ErrAlreadyVoted)

	count, err := engine.DecryptVoteCount(id, 0, "owner")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
