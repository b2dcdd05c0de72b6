package poll

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// AccessRegistry holds the two independent authorization layers.
//
// The global decryptor set contains trusted operators. Only members may add or
// remove members and only members may read tally ciphertexts. Grants are per
// (poll, option) and only let the grantee decrypt that option's tally. A grant
// never confers membership, so delegating read access can not escalate into
// the ability to authorize further decryptors.
type AccessRegistry struct {
	// mtx serializes membership changes and grants so that the membership
	// check and the write it guards can not interleave with a concurrent
	// revoke.
	mtx   sync.Mutex
	store AccessStore

	logger zerolog.Logger
}

// NewAccessRegistry seeds the global set with owner.
func NewAccessRegistry(store AccessStore, owner Identity, logger zerolog.Logger) (*AccessRegistry, error) {
	if err := validateIdentity(owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if err := store.SetDecryptor(owner, true); err != nil {
		return nil, fmt.Errorf("seeding owner as decryptor: %w", err)
	}
	return &AccessRegistry{
		store:  store,
		logger: logger,
	}, nil
}

// IsAuthorizedDecryptor reports membership of the global set.
func (r *AccessRegistry) IsAuthorizedDecryptor(identity Identity) (bool, error) {
	return r.store.IsDecryptor(identity)
}

// RequireDecryptor returns ErrNotAuthorized unless caller is a member.
func (r *AccessRegistry) RequireDecryptor(caller Identity) error {
	ok, err := r.store.IsDecryptor(caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not an authorized decryptor: %w", caller, ErrNotAuthorized)
	}
	return nil
}

// AuthorizeDecryptor adds identity to the global set.
func (r *AccessRegistry) AuthorizeDecryptor(identity, caller Identity) error {
	return r.setDecryptor(identity, caller, true)
}

// RevokeDecryptor removes identity from the global set. A member may revoke
// itself.
func (r *AccessRegistry) RevokeDecryptor(identity, caller Identity) error {
	return r.setDecryptor(identity, caller, false)
}

func (r *AccessRegistry) setDecryptor(identity, caller Identity, authorized bool) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	return r.asDecryptor(caller, func() error {
		if err := r.store.SetDecryptor(identity, authorized); err != nil {
			return fmt.Errorf("updating decryptor %s: %w", identity, err)
		}
		r.logger.Info().
			Str("decryptor", string(identity)).
			Str("by", string(caller)).
			Bool("authorized", authorized).
			Msg("decryptor set updated")
		return nil
	})
}

// asDecryptor runs fn while caller is a member. Membership can not change
// until fn returns: a revoke that completes first makes fn never run, and a
// revoke that starts later waits for fn.
func (r *AccessRegistry) asDecryptor(caller Identity, fn func() error) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.RequireDecryptor(caller); err != nil {
		return err
	}
	return fn()
}

// HasGrant reports whether grantee may decrypt the option's tally.
func (r *AccessRegistry) HasGrant(pollID uint64, option int, grantee Identity) (bool, error) {
	return r.store.HasGrant(pollID, option, grantee)
}

// Grantees lists everyone holding a grant on the option.
func (r *AccessRegistry) Grantees(pollID uint64, option int) ([]Identity, error) {
	return r.store.Grantees(pollID, option)
}

// addGrant records a grant. It must run inside asDecryptor for the granting
// caller, with the poll's lock held.
func (r *AccessRegistry) addGrant(pollID uint64, option int, grantee, caller Identity) error {
	if err := r.store.AddGrant(pollID, option, grantee); err != nil {
		return fmt.Errorf("recording grant on poll %d option %d: %w", pollID, option, err)
	}
	r.logger.Info().
		Uint64("poll", pollID).
		Int("option", option).
		Str("grantee", string(grantee)).
		Str("by", string(caller)).
		Msg("decryption access granted")
	return nil
}

func validateIdentity(identity Identity) error {
	if len(identity) == 0 {
		return fmt.Errorf("empty identity: %w", ErrInvalidIdentity)
	}
	if len(identity) > MaxIdentitySize {
		return fmt.Errorf("identity longer than %d bytes: %w", MaxIdentitySize, ErrInvalidIdentity)
	}
	return nil
}
