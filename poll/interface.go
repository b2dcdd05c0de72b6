package poll

type (
	// Store is the durable record of polls, their encrypted tallies and the
	// per-voter participation flags. It enforces no business rules: the engine
	// performs every check before it calls a mutating method and holds the
	// poll's lock while doing so.
	//
	// Implementations must assign poll ids starting at 0 without gaps and must
	// apply each mutating method atomically.
	Store interface {
		AccessStore

		// CreatePoll persists a new poll and returns the id assigned to it. The
		// ID field of the argument is ignored.
		CreatePoll(*Poll) (uint64, error)
		// GetPoll returns a copy of the poll or ErrNotFound.
		GetPoll(id uint64) (*Poll, error)
		GetOptions(id uint64) ([]string, error)
		HasVoted(id uint64, voter Identity) (bool, error)
		// RecordVote stores the accumulated tally for the option, marks the
		// voter as having voted and increments the poll's voter count in a
		// single write.
		RecordVote(id uint64, voter Identity, option int, tally Ciphertext) error
		MarkClosed(id uint64) error
		MarkDecrypted(id uint64) error
		PollCount() (uint64, error)
	}

	// AccessStore persists both authorization relations: the global decryptor
	// set and the per (poll, option) read grants. Grants are additive only.
	AccessStore interface {
		SetDecryptor(identity Identity, authorized bool) error
		IsDecryptor(identity Identity) (bool, error)
		AddGrant(id uint64, option int, grantee Identity) error
		HasGrant(id uint64, option int, grantee Identity) (bool, error)
		Grantees(id uint64, option int) ([]Identity, error)
	}

	// CiphertextOps is the cryptographic capability the engine depends on. The
	// engine never interprets ciphertext bytes itself.
	CiphertextOps interface {
		// Zero returns a fresh encryption of zero, used to seed every tally.
		Zero() (Ciphertext, error)
		// Validate returns nil iff the ballot is well formed and the proof shows
		// that it encrypts exactly one vote unit for the given poll and voter.
		Validate(ctx BallotContext, ballot Ciphertext, proof []byte) error
		// Add returns an encryption of the sum of both plaintexts.
		Add(a, b Ciphertext) (Ciphertext, error)
		// GrantRead allows a later Decrypt of the ciphertext by the identity.
		GrantRead(ct Ciphertext, identity Identity) error
		// ReleaseRead drops every grant on ct. The engine calls it once a
		// tally has been superseded by a newer ciphertext.
		ReleaseRead(ct Ciphertext)
		// Decrypt fails unless the identity was granted read access to ct.
		Decrypt(ct Ciphertext, identity Identity) (uint64, error)
	}

	// Publisher receives an event for every state transition of the engine.
	// PublishAsync must not block: the engine calls it on the request path.
	Publisher interface {
		PublishAsync(EventType, Event) bool
	}
)
