// Package poll implements the engine behind privately tallied polls.
//
// Ballots arrive as ciphertexts under an additively homomorphic scheme and are
// folded into one running ciphertext per option. Nobody, including the engine,
// sees an individual ballot in the clear. Plaintext counts are only available to
// identities that were granted read access on an option's tally by a member of
// the global decryptor set.
//
// The engine owns the poll state machine (Open -> Closed), the vote protocol
// and the two authorization layers. Storage and the cryptographic scheme are
// injected through the Store and CiphertextOps interfaces.
package poll
