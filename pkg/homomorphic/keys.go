package homomorphic

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.dedis.ch/kyber/v3"
)

var ErrInvalidKey = errors.New("invalid key")

func GenerateKey() kyber.Scalar {
	return suite.Scalar().Pick(suite.RandomStream())
}

func EncodeSecret(secret kyber.Scalar) (string, error) {
	bz, err := secret.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bz), nil
}

func DecodeSecret(encoded string) (kyber.Scalar, error) {
	bz, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	secret := suite.Scalar()
	if err := secret.UnmarshalBinary(bz); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return secret, nil
}

func EncodePublic(public kyber.Point) (string, error) {
	bz, err := public.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bz), nil
}

func DecodePublic(encoded string) (kyber.Point, error) {
	bz, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	public := suite.Point()
	if err := public.UnmarshalBinary(bz); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if public.Equal(suite.Point().Null()) || !inPrimeOrderSubgroup(public) {
		return nil, fmt.Errorf("%w: not a prime order point", ErrInvalidKey)
	}
	return public, nil
}

// LoadSecret reads a hex encoded secret key from path.
func LoadSecret(path string) (kyber.Scalar, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSecret(string(bz))
}

// SaveSecret writes the secret key to path, readable only by the owner.
func SaveSecret(path string, secret kyber.Scalar) error {
	encoded, err := EncodeSecret(secret)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(encoded+"\n"), 0o600)
}
