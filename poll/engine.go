package poll

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const pollLockSlots = 256

// Engine runs polls whose ballots are never revealed in the clear.
//
// Every vote is a ciphertext under an additively homomorphic scheme, supplied
// through CiphertextOps. The engine adds each accepted ballot to the running
// tally of its option and only identities that were explicitly granted access
// can recover the aggregate count.
//
// All mutations of a single poll are serialized under that poll's lock so the
// has-voted check, the tally update and the voter record are applied as one
// step. Reads take the same lock in shared mode and always observe a fully
// applied vote. Events are published after the lock is released.
type Engine struct {
	ops      CiphertextOps
	store    Store
	registry *AccessRegistry
	params   Parameters

	// locks is a fixed table of poll locks indexed by poll id modulo its
	// size. Polls sharing a slot are serialized with each other.
	locks [pollLockSlots]sync.RWMutex

	publisher Publisher
	now       func() time.Time
	metrics   *engineMetrics
	logger    zerolog.Logger
}

// New creates an engine. The owner is the sole initial member of the global
// decryptor set.
func New(ops CiphertextOps, owner Identity, opts ...Option) (*Engine, error) {
	e := &Engine{
		ops:    ops,
		params: DefaultParameters(),
		now:    time.Now,
		logger: zerolog.New(os.Stdout),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = NewMemStore()
	}

	registry, err := NewAccessRegistry(e.store, owner, e.logger.With().Str("module", "registry").Logger())
	if err != nil {
		return nil, err
	}
	e.registry = registry
	return e, nil
}

// Registry exposes the access registry, mainly for read only queries.
func (e *Engine) Registry() *AccessRegistry {
	return e.registry
}

// CreatePoll opens a new poll lasting duration seconds from now and returns
// its id. Every option's tally starts as a fresh encryption of zero.
func (e *Engine) CreatePoll(title, description string, options []string, duration uint64, caller Identity) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if title == "" || description == "" {
		return 0, fmt.Errorf("title and description must not be empty: %w", ErrInvalidPoll)
	}
	if len(options) < e.params.MinOptions || len(options) > e.params.MaxOptions {
		return 0, fmt.Errorf("poll must have between %d and %d options, got %d: %w",
			e.params.MinOptions, e.params.MaxOptions, len(options), ErrInvalidOption)
	}
	for idx, label := range options {
		if label == "" {
			return 0, fmt.Errorf("option %d has an empty label: %w", idx, ErrInvalidOption)
		}
	}
	start := e.unixNow()
	if duration == 0 {
		return 0, fmt.Errorf("duration must be positive: %w", ErrInvalidTimeRange)
	}
	if duration > math.MaxUint64-start {
		return 0, fmt.Errorf("duration %d overflows the end time: %w", duration, ErrInvalidTimeRange)
	}
	if e.params.MaxDuration > 0 && duration > e.params.MaxDuration {
		return 0, fmt.Errorf("duration %d exceeds maximum %d: %w", duration, e.params.MaxDuration, ErrInvalidTimeRange)
	}

	tally, err := e.zeroTally(len(options))
	if err != nil {
		return 0, err
	}

	p := &Poll{
		Title:       title,
		Description: description,
		Options:     append([]string(nil), options...),
		StartTime:   start,
		EndTime:     start + duration,
		Creator:     caller,
		Tally:       tally,
	}
	id, err := e.store.CreatePoll(p)
	if err != nil {
		return 0, fmt.Errorf("storing poll: %w", err)
	}

	e.metrics.created()
	e.logger.Info().
		Uint64("poll", id).
		Str("title", title).
		Str("creator", string(caller)).
		Uint64("end_time", p.EndTime).
		Int("options", len(options)).
		Msg("poll created")
	e.publish(EventPollCreated, PollCreatedEvent{
		PollID:    id,
		Title:     title,
		Creator:   caller,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	})
	return id, nil
}

// Vote adds an encrypted ballot to the tally of the chosen option. The proof
// must show that the ballot encrypts exactly one vote and must be bound to
// this poll and caller. Each identity can vote once per poll.
func (e *Engine) Vote(pollID uint64, option int, ballot Ciphertext, proof []byte, caller Identity) error {
	err := requireCaller(caller)
	if err == nil {
		mtx := e.lock(pollID)
		mtx.Lock()
		err = e.castVote(pollID, option, ballot, proof, caller)
		mtx.Unlock()
	}
	if err != nil {
		e.metrics.rejected(err)
		e.logger.Debug().
			Err(err).
			Uint64("poll", pollID).
			Str("voter", string(caller)).
			Msg("vote rejected")
		return err
	}

	e.metrics.voted()
	e.logger.Info().
		Uint64("poll", pollID).
		Str("voter", string(caller)).
		Msg("vote cast")
	e.publish(EventVoteCast, VoteCastEvent{PollID: pollID, Voter: caller})
	return nil
}

// castVote must be called with the poll's write lock held. Preconditions are
// checked in a fixed order so that callers see a stable error kind. An out of
// range option is reported alongside whichever check fails first.
func (e *Engine) castVote(pollID uint64, option int, ballot Ciphertext, proof []byte, caller Identity) error {
	p, err := e.store.GetPoll(pollID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrPollNotActive, err)
	}
	if err != nil {
		return err
	}

	optionErr := checkOption(p, option)
	if !p.IsActive(e.unixNow()) {
		return alsoInvalid(fmt.Errorf("poll %d: %w", pollID, ErrPollNotActive), optionErr)
	}
	voted, err := e.store.HasVoted(pollID, caller)
	if err != nil {
		return err
	}
	if voted {
		return alsoInvalid(fmt.Errorf("poll %d voter %s: %w", pollID, caller, ErrAlreadyVoted), optionErr)
	}
	if optionErr != nil {
		return optionErr
	}
	if err := e.ops.Validate(BallotContext{PollID: pollID, Voter: caller}, ballot, proof); err != nil {
		return fmt.Errorf("poll %d voter %s: %w: %w", pollID, caller, ErrCryptoValidationFailed, err)
	}

	tally, err := e.accumulate(pollID, option, p.Tally[option], ballot)
	if err != nil {
		return err
	}
	if err := e.store.RecordVote(pollID, caller, option, tally); err != nil {
		e.ops.ReleaseRead(tally)
		return fmt.Errorf("recording vote: %w", err)
	}
	e.ops.ReleaseRead(p.Tally[option])
	return nil
}

// ClosePoll stops a poll from accepting votes. The creator may close a poll at
// any time and anyone may close it once its end time has passed. Closing a
// closed poll succeeds without effect.
func (e *Engine) ClosePoll(pollID uint64, caller Identity) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	mtx := e.lock(pollID)
	mtx.Lock()
	closed, err := e.closePoll(pollID, caller)
	mtx.Unlock()
	if err != nil || !closed {
		return err
	}

	e.metrics.closed()
	e.logger.Info().
		Uint64("poll", pollID).
		Str("by", string(caller)).
		Msg("poll closed")
	e.publish(EventPollClosed, PollClosedEvent{PollID: pollID})
	return nil
}

func (e *Engine) closePoll(pollID uint64, caller Identity) (bool, error) {
	p, err := e.store.GetPoll(pollID)
	if err != nil {
		return false, err
	}
	if p.Closed {
		return false, nil
	}
	if caller != p.Creator && !p.Expired(e.unixNow()) {
		return false, fmt.Errorf("only the creator can close poll %d before it ends: %w", pollID, ErrNotAuthorized)
	}
	if err := e.store.MarkClosed(pollID); err != nil {
		return false, fmt.Errorf("closing poll %d: %w", pollID, err)
	}
	return true, nil
}

// GetPollInfo returns the public view of a poll.
func (e *Engine) GetPollInfo(pollID uint64) (Info, error) {
	mtx := e.lock(pollID)
	mtx.RLock()
	defer mtx.RUnlock()
	p, err := e.store.GetPoll(pollID)
	if err != nil {
		return Info{}, err
	}
	return p.info(e.unixNow()), nil
}

func (e *Engine) GetPollOptions(pollID uint64) ([]string, error) {
	mtx := e.lock(pollID)
	mtx.RLock()
	defer mtx.RUnlock()
	return e.store.GetOptions(pollID)
}

// HasVoted reports whether identity voted on the poll. Unknown polls have no
// voters.
func (e *Engine) HasVoted(pollID uint64, identity Identity) (bool, error) {
	mtx := e.lock(pollID)
	mtx.RLock()
	defer mtx.RUnlock()
	voted, err := e.store.HasVoted(pollID, identity)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return voted, err
}

func (e *Engine) PollCount() (uint64, error) {
	return e.store.PollCount()
}

// AuthorizeDecryptor adds identity to the global decryptor set. Only members
// of the set may call it.
func (e *Engine) AuthorizeDecryptor(identity, caller Identity) error {
	if err := e.registry.AuthorizeDecryptor(identity, caller); err != nil {
		return err
	}
	e.publish(EventDecryptorAuthorized, DecryptorEvent{Decryptor: identity, By: caller})
	return nil
}

// RevokeDecryptor removes identity from the global decryptor set. Grants the
// identity already holds are kept.
func (e *Engine) RevokeDecryptor(identity, caller Identity) error {
	if err := e.registry.RevokeDecryptor(identity, caller); err != nil {
		return err
	}
	e.publish(EventDecryptorRevoked, DecryptorEvent{Decryptor: identity, By: caller})
	return nil
}

func (e *Engine) IsAuthorizedDecryptor(identity Identity) (bool, error) {
	return e.registry.IsAuthorizedDecryptor(identity)
}

// AllowDecryptorAccess lets grantee decrypt the tally of one option of one
// poll. The caller must be a global decryptor. The grant follows the tally as
// further votes are added.
func (e *Engine) AllowDecryptorAccess(pollID uint64, option int, grantee, caller Identity) error {
	if err := validateIdentity(grantee); err != nil {
		return fmt.Errorf("grantee: %w", err)
	}
	mtx := e.lock(pollID)
	mtx.Lock()
	err := e.grantAccess(pollID, option, grantee, caller)
	mtx.Unlock()
	if err != nil {
		return err
	}
	e.publish(EventAccessGranted, AccessGrantedEvent{
		PollID:  pollID,
		Option:  option,
		Grantee: grantee,
		By:      caller,
	})
	return nil
}

// grantAccess must be called with the poll's write lock held. The grant is
// persisted before the ciphertext layer learns of it, and both happen while
// the caller's membership is pinned by the registry.
func (e *Engine) grantAccess(pollID uint64, option int, grantee, caller Identity) error {
	return e.registry.asDecryptor(caller, func() error {
		p, err := e.store.GetPoll(pollID)
		if err != nil {
			return err
		}
		if err := checkOption(p, option); err != nil {
			return err
		}
		if err := e.registry.addGrant(pollID, option, grantee, caller); err != nil {
			return err
		}
		if err := e.ops.GrantRead(p.Tally[option], grantee); err != nil {
			return fmt.Errorf("granting read on poll %d option %d: %w", pollID, option, err)
		}
		return nil
	})
}

// GetEncryptedVoteCount returns a snapshot of an option's tally. Only global
// decryptors may read tallies. Votes cast after the call are not reflected in
// the returned ciphertext.
func (e *Engine) GetEncryptedVoteCount(pollID uint64, option int, caller Identity) (Ciphertext, error) {
	if err := e.registry.RequireDecryptor(caller); err != nil {
		return nil, err
	}
	p, err := e.snapshot(pollID)
	if err != nil {
		return nil, err
	}
	if err := checkOption(p, option); err != nil {
		return nil, err
	}
	return p.Tally[option], nil
}

// DecryptVoteCount decrypts an option's current tally on behalf of caller,
// who must hold a grant for that option. The poll's read lock is held until
// the decryption finishes so the tally can not be superseded meanwhile.
func (e *Engine) DecryptVoteCount(pollID uint64, option int, caller Identity) (uint64, error) {
	mtx := e.lock(pollID)
	mtx.RLock()
	defer mtx.RUnlock()
	p, err := e.store.GetPoll(pollID)
	if err != nil {
		return 0, err
	}
	if err := checkOption(p, option); err != nil {
		return 0, err
	}
	granted, err := e.registry.HasGrant(pollID, option, caller)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, fmt.Errorf("%s holds no grant on poll %d option %d: %w", caller, pollID, option, ErrNotAuthorized)
	}
	count, err := e.ops.Decrypt(p.Tally[option], caller)
	if err != nil {
		return 0, fmt.Errorf("decrypting poll %d option %d: %w", pollID, option, err)
	}
	return count, nil
}

// RequestDecryption marks the decryption workflow of the poll as requested
// and complete. The plaintext counts are then retrieved per option by
// identities holding grants.
func (e *Engine) RequestDecryption(pollID uint64, caller Identity) (bool, error) {
	if err := requireCaller(caller); err != nil {
		return false, err
	}
	mtx := e.lock(pollID)
	mtx.Lock()
	err := e.markDecrypted(pollID)
	mtx.Unlock()
	if err != nil {
		return false, err
	}

	e.metrics.decryptionRequested()
	e.logger.Info().
		Uint64("poll", pollID).
		Str("requester", string(caller)).
		Msg("decryption requested")
	e.publish(EventDecryptionRequested, DecryptionRequestedEvent{PollID: pollID, Requester: caller})
	return true, nil
}

func (e *Engine) markDecrypted(pollID uint64) error {
	if _, err := e.store.GetPoll(pollID); err != nil {
		return err
	}
	if err := e.store.MarkDecrypted(pollID); err != nil {
		return fmt.Errorf("marking poll %d decrypted: %w", pollID, err)
	}
	return nil
}

// IsDecrypted reports whether decryption was requested for the poll. Unknown
// polls are not decrypted.
func (e *Engine) IsDecrypted(pollID uint64) (bool, error) {
	p, err := e.snapshot(pollID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Decrypted, nil
}

func (e *Engine) snapshot(pollID uint64) (*Poll, error) {
	mtx := e.lock(pollID)
	mtx.RLock()
	defer mtx.RUnlock()
	return e.store.GetPoll(pollID)
}

// lock returns the lock guarding the poll. Looking up a lock never allocates,
// whether or not the poll exists.
func (e *Engine) lock(pollID uint64) *sync.RWMutex {
	return &e.locks[pollID%pollLockSlots]
}

func (e *Engine) publish(eventType EventType, data any) {
	if e.publisher == nil {
		return
	}
	e.publisher.PublishAsync(eventType, NewEvent(eventType, data))
}

func (e *Engine) unixNow() uint64 {
	now := e.now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func requireCaller(caller Identity) error {
	if caller == "" {
		return fmt.Errorf("missing caller: %w", ErrNotAuthorized)
	}
	return validateIdentity(caller)
}

func checkOption(p *Poll, option int) error {
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("poll %d has %d options, got %d: %w", p.ID, len(p.Options), option, ErrInvalidOption)
	}
	return nil
}

func alsoInvalid(err, optionErr error) error {
	if optionErr == nil {
		return err
	}
	return fmt.Errorf("%w (%w)", err, optionErr)
}
