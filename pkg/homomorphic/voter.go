package homomorphic

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof"

	"github.com/cmwaters/privpoll/poll"
)

// Voter builds ballots on the client side. It only knows the public key.
type Voter struct {
	public kyber.Point
}

func NewVoter(public kyber.Point) *Voter {
	return &Voter{public: public}
}

// Ballot encrypts a single vote and proves it, bound to the poll and voter of
// ctx. The chosen option is not part of the ballot: the same ballot counts as
// one vote for whichever option it is cast for.
func (v *Voter) Ballot(ctx poll.BallotContext) (poll.Ciphertext, []byte, error) {
	r := suite.Scalar().Pick(suite.RandomStream())
	K := suite.Point().Mul(r, nil)
	D := suite.Point().Mul(r, v.public)
	C := suite.Point().Add(D, suite.Point().Base())

	secrets := map[string]kyber.Scalar{"r": r}
	points := map[string]kyber.Point{
		"B": suite.Point().Base(),
		"H": v.public,
		"K": K,
		"D": D,
	}
	prover := ballotPredicate().Prover(suite, secrets, points, nil)
	ballotProof, err := proof.HashProve(suite, protocolName(ctx), prover)
	if err != nil {
		return nil, nil, err
	}
	ballot, err := encode(K, C)
	if err != nil {
		return nil, nil, err
	}
	return ballot, ballotProof, nil
}
