package poll

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	// BallotContextVersion prefixes every encoded ballot context so that the
	// encoding can change without old proofs verifying under the new format.
	BallotContextVersion uint8 = 1

	// MaxIdentitySize is the maximum length in bytes of an identity that can be
	// bound into a ballot proof.
	MaxIdentitySize = math.MaxUint8
)

var ErrInvalidBallotContextLength = errors.New("invalid ballot context length")

// BallotContext is what a ballot's validity proof is bound to. A proof made for
// one poll and voter does not verify for any other pair.
type BallotContext struct {
	PollID uint64
	Voter  Identity
}

// Bytes encodes the context as
//
//	1 byte version
//	8 bytes poll id (big endian)
//	up to 255 bytes length prefixed voter identity (single byte length)
func (c BallotContext) Bytes() []byte {
	if len(c.Voter) > MaxIdentitySize {
		panic("voter identity can not be longer than 255 bytes")
	}
	buf := bytes.NewBuffer(make([]byte, 0, 10+len(c.Voter)))
	buf.WriteByte(BallotContextVersion)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, c.PollID)
	buf.Write(idBytes)
	buf.WriteByte(byte(len(c.Voter)))
	buf.WriteString(string(c.Voter))
	return buf.Bytes()
}

// DecodeBallotContext reverses Bytes.
func DecodeBallotContext(msg []byte) (BallotContext, error) {
	if len(msg) < 10 || msg[0] != BallotContextVersion {
		return BallotContext{}, ErrInvalidBallotContextLength
	}
	voterLength := int(msg[9])
	if len(msg) != 10+voterLength {
		return BallotContext{}, ErrInvalidBallotContextLength
	}
	return BallotContext{
		PollID: binary.BigEndian.Uint64(msg[1:9]),
		Voter:  Identity(msg[10:]),
	}, nil
}
