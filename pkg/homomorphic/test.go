package homomorphic

// NewTestScheme returns a scheme with a fresh key and a small decryptable
// range, together with a voter for it.
func NewTestScheme() (*Scheme, *Voter) {
	scheme := NewScheme(GenerateKey(), 1000)
	return scheme, NewVoter(scheme.PublicKey())
}
