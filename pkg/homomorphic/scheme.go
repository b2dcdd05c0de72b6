package homomorphic

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/proof"

	"github.com/cmwaters/privpoll/poll"
)

// DefaultMaxCount bounds the plaintexts Decrypt can recover. Decryption walks
// every value up to the bound, so it should stay close to the expected number
// of voters of a poll.
const DefaultMaxCount = 1 << 20

var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrInvalidProof        = errors.New("invalid ballot proof")
	ErrNoReadGrant         = errors.New("no read grant for ciphertext")
	ErrCountOutOfRange     = errors.New("plaintext exceeds decryptable range")
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// groupOrder is the prime order l of the Ed25519 base point, little endian.
// UnmarshalBinary keeps the value unreduced, so multiplying by it is not a
// multiplication by zero.
var groupOrder = func() kyber.Scalar {
	l := []byte{
		0xed, 0xd3, 0xf5, 0x5c, 0x1a, 0x63, 0x12, 0x58,
		0xd6, 0x9c, 0xf7, 0xa2, 0xde, 0xf9, 0xde, 0x14,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10,
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(l); err != nil {
		panic(err)
	}
	return s
}()

// inPrimeOrderSubgroup reports whether lP is the identity. Points with a
// small order component pass proof verification for some challenges and
// would push a tally out of the decryptable range.
func inPrimeOrderSubgroup(P kyber.Point) bool {
	return suite.Point().Mul(groupOrder, P).Equal(suite.Point().Null())
}

var _ poll.CiphertextOps = (*Scheme)(nil)

// Scheme is exponential ElGamal over Ed25519.
//
// A value m encrypted with randomness r is the pair (K, C) = (rB, rH + mB)
// where H = xB is the public key. Adding two ciphertexts point-wise yields an
// encryption of the sum of their plaintexts. A ballot is an encryption of one,
// accompanied by a non-interactive proof that K and C - B share the same
// discrete log with respect to B and H.
//
// Read grants are tracked per ciphertext. The secret key never leaves the
// scheme: decryption happens here on behalf of a granted identity.
type Scheme struct {
	secret   kyber.Scalar
	public   kyber.Point
	maxCount uint64

	mtx    sync.RWMutex
	grants map[[sha256.Size]byte]map[poll.Identity]struct{}
}

// NewScheme creates a scheme around the given secret key. A maxCount of zero
// means DefaultMaxCount.
func NewScheme(secret kyber.Scalar, maxCount uint64) *Scheme {
	if maxCount == 0 {
		maxCount = DefaultMaxCount
	}
	return &Scheme{
		secret:   secret,
		public:   suite.Point().Mul(secret, nil),
		maxCount: maxCount,
		grants:   make(map[[sha256.Size]byte]map[poll.Identity]struct{}),
	}
}

// PublicKey is what voters encrypt their ballots under.
func (s *Scheme) PublicKey() kyber.Point {
	return s.public.Clone()
}

func (s *Scheme) Zero() (poll.Ciphertext, error) {
	r := suite.Scalar().Pick(suite.RandomStream())
	K := suite.Point().Mul(r, nil)
	C := suite.Point().Mul(r, s.public)
	return encode(K, C)
}

func (s *Scheme) Validate(ctx poll.BallotContext, ballot poll.Ciphertext, ballotProof []byte) error {
	K, C, err := decode(ballot)
	if err != nil {
		return err
	}
	D := suite.Point().Sub(C, suite.Point().Base())
	points := map[string]kyber.Point{
		"B": suite.Point().Base(),
		"H": s.public,
		"K": K,
		"D": D,
	}
	verifier := ballotPredicate().Verifier(suite, points)
	if err := proof.HashVerify(suite, protocolName(ctx), verifier, ballotProof); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	return nil
}

func (s *Scheme) Add(a, b poll.Ciphertext) (poll.Ciphertext, error) {
	aK, aC, err := decode(a)
	if err != nil {
		return nil, err
	}
	bK, bC, err := decode(b)
	if err != nil {
		return nil, err
	}
	return encode(suite.Point().Add(aK, bK), suite.Point().Add(aC, bC))
}

func (s *Scheme) GrantRead(ct poll.Ciphertext, identity poll.Identity) error {
	if _, _, err := decode(ct); err != nil {
		return err
	}
	digest := sha256.Sum256(ct)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.grants[digest]; !ok {
		s.grants[digest] = make(map[poll.Identity]struct{})
	}
	s.grants[digest][identity] = struct{}{}
	return nil
}

func (s *Scheme) ReleaseRead(ct poll.Ciphertext) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.grants, sha256.Sum256(ct))
}

func (s *Scheme) Decrypt(ct poll.Ciphertext, identity poll.Identity) (uint64, error) {
	s.mtx.RLock()
	_, granted := s.grants[sha256.Sum256(ct)][identity]
	s.mtx.RUnlock()
	if !granted {
		return 0, fmt.Errorf("%s on %s: %w", identity, ct.Handle(), ErrNoReadGrant)
	}
	K, C, err := decode(ct)
	if err != nil {
		return 0, err
	}
	M := suite.Point().Sub(C, suite.Point().Mul(s.secret, K))
	return s.discreteLog(M)
}

// discreteLog finds m such that mB = M by walking up from zero.
func (s *Scheme) discreteLog(M kyber.Point) (uint64, error) {
	acc := suite.Point().Null()
	base := suite.Point().Base()
	for m := uint64(0); m <= s.maxCount; m++ {
		if acc.Equal(M) {
			return m, nil
		}
		acc = acc.Add(acc, base)
	}
	return 0, fmt.Errorf("%w: above %d", ErrCountOutOfRange, s.maxCount)
}

func ballotPredicate() proof.Predicate {
	return proof.And(
		proof.Rep("K", "r", "B"),
		proof.Rep("D", "r", "H"),
	)
}

// protocolName binds a proof to the poll and the voter. A proof produced for
// any other pair fails verification.
func protocolName(ctx poll.BallotContext) string {
	return fmt.Sprintf("privpoll/ballot/%x", ctx.Bytes())
}

func encode(K, C kyber.Point) (poll.Ciphertext, error) {
	kBytes, err := K.MarshalBinary()
	if err != nil {
		return nil, err
	}
	cBytes, err := C.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(kBytes, cBytes...), nil
}

func decode(ct poll.Ciphertext) (kyber.Point, kyber.Point, error) {
	size := suite.PointLen()
	if len(ct) != 2*size {
		return nil, nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedCiphertext, 2*size, len(ct))
	}
	K := suite.Point()
	if err := K.UnmarshalBinary(ct[:size]); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	C := suite.Point()
	if err := C.UnmarshalBinary(ct[size:]); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	if !inPrimeOrderSubgroup(K) || !inPrimeOrderSubgroup(C) {
		return nil, nil, fmt.Errorf("%w: point outside the prime order subgroup", ErrMalformedCiphertext)
	}
	return K, C, nil
}
