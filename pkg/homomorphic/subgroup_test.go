package homomorphic

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof"

	"github.com/cmwaters/privpoll/poll"
)

// orderTwo is the encoding of (0, -1), the point of order two.
const orderTwo = "ecffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7f"

func torsionPoint(t *testing.T) kyber.Point {
	t.Helper()
	bz, err := hex.DecodeString(orderTwo)
	require.NoError(t, err)
	T := suite.Point()
	require.NoError(t, T.UnmarshalBinary(bz))
	require.False(t, T.Equal(suite.Point().Null()))
	require.True(t, suite.Point().Add(T, T).Equal(suite.Point().Null()))
	return T
}

// torsionBallot encrypts one vote shifted by a point of order two and retries
// the proof until its challenge annihilates the shift, so the proof verifies.
func torsionBallot(t *testing.T, public kyber.Point, ctx poll.BallotContext) (poll.Ciphertext, []byte) {
	t.Helper()
	T := torsionPoint(t)
	for attempt := 0; attempt < 128; attempt++ {
		r := suite.Scalar().Pick(suite.RandomStream())
		K := suite.Point().Mul(r, nil)
		D := suite.Point().Add(suite.Point().Mul(r, public), T)
		points := map[string]kyber.Point{
			"B": suite.Point().Base(),
			"H": public,
			"K": K,
			"D": D,
		}
		prover := ballotPredicate().Prover(suite, map[string]kyber.Scalar{"r": r}, points, nil)
		ballotProof, err := proof.HashProve(suite, protocolName(ctx), prover)
		require.NoError(t, err)
		verifier := ballotPredicate().Verifier(suite, points)
		if proof.HashVerify(suite, protocolName(ctx), verifier, ballotProof) != nil {
			continue
		}
		ballot, err := encode(K, suite.Point().Add(D, suite.Point().Base()))
		require.NoError(t, err)
		return ballot, ballotProof
	}
	t.Fatal("no proof found for the shifted ballot")
	return nil, nil
}

func TestRejectsBallotWithSmallOrderComponent(t *testing.T) {
	scheme, voter := NewTestScheme()
	ctx := poll.BallotContext{PollID: 3, Voter: "mallory"}
	ballot, ballotProof := torsionBallot(t, scheme.PublicKey(), ctx)

	err := scheme.Validate(ctx, ballot, ballotProof)
	require.ErrorIs(t, err, ErrMalformedCiphertext)

	// nor can it enter a tally through Add
	honest, _, err := voter.Ballot(poll.BallotContext{PollID: 3, Voter: "alice"})
	require.NoError(t, err)
	_, err = scheme.Add(honest, ballot)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestSubgroupCheck(t *testing.T) {
	require.True(t, inPrimeOrderSubgroup(suite.Point().Base()))
	require.True(t, inPrimeOrderSubgroup(suite.Point().Null()))
	require.True(t, inPrimeOrderSubgroup(suite.Point().Pick(suite.RandomStream())))

	T := torsionPoint(t)
	require.False(t, inPrimeOrderSubgroup(T))
	require.False(t, inPrimeOrderSubgroup(suite.Point().Add(suite.Point().Base(), T)))

	encoded, err := EncodePublic(suite.Point().Add(suite.Point().Base(), T))
	require.NoError(t, err)
	_, err = DecodePublic(encoded)
	require.ErrorIs(t, err, ErrInvalidKey)
}
