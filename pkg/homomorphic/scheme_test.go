package homomorphic_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/pkg/homomorphic"
	"github.com/cmwaters/privpoll/poll"
)

func TestTallyOfBallots(t *testing.T) {
	scheme, voter := homomorphic.NewTestScheme()
	tally, err := scheme.Zero()
	require.NoError(t, err)

	for i, name := range []poll.Identity{"alice", "bob", "carol"} {
		ctx := poll.BallotContext{PollID: 7, Voter: name}
		ballot, ballotProof, err := voter.Ballot(ctx)
		require.NoError(t, err)
		require.NoError(t, scheme.Validate(ctx, ballot, ballotProof), "ballot %d", i)
		tally, err = scheme.Add(tally, ballot)
		require.NoError(t, err)
	}

	require.NoError(t, scheme.GrantRead(tally, "auditor"))
	count, err := scheme.Decrypt(tally, "auditor")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestZeroDecryptsToZero(t *testing.T) {
	scheme, _ := homomorphic.NewTestScheme()
	zero, err := scheme.Zero()
	require.NoError(t, err)
	other, err := scheme.Zero()
	require.NoError(t, err)
	// fresh randomness every time
	require.NotEqual(t, zero, other)

	require.NoError(t, scheme.GrantRead(zero, "auditor"))
	count, err := scheme.Decrypt(zero, "auditor")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestProofIsBoundToPollAndVoter(t *testing.T) {
	scheme, voter := homomorphic.NewTestScheme()
	ctx := poll.BallotContext{PollID: 1, Voter: "alice"}
	ballot, ballotProof, err := voter.Ballot(ctx)
	require.NoError(t, err)
	require.NoError(t, scheme.Validate(ctx, ballot, ballotProof))

	err = scheme.Validate(poll.BallotContext{PollID: 1, Voter: "mallory"}, ballot, ballotProof)
	require.ErrorIs(t, err, homomorphic.ErrInvalidProof)

	err = scheme.Validate(poll.BallotContext{PollID: 2, Voter: "alice"}, ballot, ballotProof)
	require.ErrorIs(t, err, homomorphic.ErrInvalidProof)
}

func TestRejectsBallotOfMoreThanOneVote(t *testing.T) {
	scheme, voter := homomorphic.NewTestScheme()
	ctx := poll.BallotContext{PollID: 0, Voter: "alice"}
	ballot, ballotProof, err := voter.Ballot(ctx)
	require.NoError(t, err)

	// doubling the ballot encrypts two votes, the proof no longer holds
	doubled, err := scheme.Add(ballot, ballot)
	require.NoError(t, err)
	err = scheme.Validate(ctx, doubled, ballotProof)
	require.ErrorIs(t, err, homomorphic.ErrInvalidProof)

	// an encryption of zero carries no valid proof either
	zero, err := scheme.Zero()
	require.NoError(t, err)
	err = scheme.Validate(ctx, zero, ballotProof)
	require.ErrorIs(t, err, homomorphic.ErrInvalidProof)

	err = scheme.Validate(ctx, ballot, []byte("garbage"))
	require.ErrorIs(t, err, homomorphic.ErrInvalidProof)
}

func TestRejectsMalformedCiphertext(t *testing.T) {
	scheme, _ := homomorphic.NewTestScheme()
	ctx := poll.BallotContext{PollID: 0, Voter: "alice"}
	err := scheme.Validate(ctx, poll.Ciphertext("short"), nil)
	require.ErrorIs(t, err, homomorphic.ErrMalformedCiphertext)

	_, err = scheme.Add(poll.Ciphertext("short"), poll.Ciphertext("short"))
	require.ErrorIs(t, err, homomorphic.ErrMalformedCiphertext)

	require.ErrorIs(t, scheme.GrantRead(poll.Ciphertext("short"), "auditor"), homomorphic.ErrMalformedCiphertext)
}

func TestDecryptRequiresGrant(t *testing.T) {
	scheme, voter := homomorphic.NewTestScheme()
	ballot, _, err := voter.Ballot(poll.BallotContext{PollID: 0, Voter: "alice"})
	require.NoError(t, err)

	_, err = scheme.Decrypt(ballot, "auditor")
	require.ErrorIs(t, err, homomorphic.ErrNoReadGrant)

	require.NoError(t, scheme.GrantRead(ballot, "auditor"))
	count, err := scheme.Decrypt(ballot, "auditor")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	// the grant is on this ciphertext only
	sum, err := scheme.Add(ballot, ballot)
	require.NoError(t, err)
	_, err = scheme.Decrypt(sum, "auditor")
	require.ErrorIs(t, err, homomorphic.ErrNoReadGrant)

	scheme.ReleaseRead(ballot)
	_, err = scheme.Decrypt(ballot, "auditor")
	require.ErrorIs(t, err, homomorphic.ErrNoReadGrant)
}

func TestDecryptBeyondMaxCount(t *testing.T) {
	scheme := homomorphic.NewScheme(homomorphic.GenerateKey(), 2)
	voter := homomorphic.NewVoter(scheme.PublicKey())
	tally, err := scheme.Zero()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ballot, _, err := voter.Ballot(poll.BallotContext{PollID: 0, Voter: "alice"})
		require.NoError(t, err)
		tally, err = scheme.Add(tally, ballot)
		require.NoError(t, err)
	}
	require.NoError(t, scheme.GrantRead(tally, "auditor"))
	_, err = scheme.Decrypt(tally, "auditor")
	require.ErrorIs(t, err, homomorphic.ErrCountOutOfRange)
}

func TestKeyEncoding(t *testing.T) {
	secret := homomorphic.GenerateKey()
	encoded, err := homomorphic.EncodeSecret(secret)
	require.NoError(t, err)
	decoded, err := homomorphic.DecodeSecret(encoded)
	require.NoError(t, err)
	require.True(t, secret.Equal(decoded))

	scheme := homomorphic.NewScheme(secret, 0)
	pub, err := homomorphic.EncodePublic(scheme.PublicKey())
	require.NoError(t, err)
	point, err := homomorphic.DecodePublic(pub)
	require.NoError(t, err)
	require.True(t, point.Equal(scheme.PublicKey()))

	_, err = homomorphic.DecodeSecret("zz")
	require.ErrorIs(t, err, homomorphic.ErrInvalidKey)
	_, err = homomorphic.DecodePublic("00")
	require.ErrorIs(t, err, homomorphic.ErrInvalidKey)
}

func TestSaveAndLoadSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	secret := homomorphic.GenerateKey()
	require.NoError(t, homomorphic.SaveSecret(path, secret))
	loaded, err := homomorphic.LoadSecret(path)
	require.NoError(t, err)
	require.True(t, secret.Equal(loaded))
}
