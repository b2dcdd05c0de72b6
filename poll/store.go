package poll

import (
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps everything in memory. It is the default store of the engine
// and the reference implementation for durable stores.
type MemStore struct {
	pollMtx sync.RWMutex
	polls   []*Poll
	// voters indexed by poll id then voter identity
	voters map[uint64]map[Identity]struct{}

	accessMtx  sync.RWMutex
	decryptors map[Identity]struct{}
	// grants indexed by poll id, option then grantee
	grants map[uint64]map[int]map[Identity]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		voters:     make(map[uint64]map[Identity]struct{}),
		decryptors: make(map[Identity]struct{}),
		grants:     make(map[uint64]map[int]map[Identity]struct{}),
	}
}

func (s *MemStore) CreatePoll(p *Poll) (uint64, error) {
	s.pollMtx.Lock()
	defer s.pollMtx.Unlock()
	stored := p.Copy()
	stored.ID = uint64(len(s.polls))
	s.polls = append(s.polls, stored)
	return stored.ID, nil
}

func (s *MemStore) GetPoll(id uint64) (*Poll, error) {
	s.pollMtx.RLock()
	defer s.pollMtx.RUnlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return p.Copy(), nil
}

func (s *MemStore) GetOptions(id uint64) ([]string, error) {
	s.pollMtx.RLock()
	defer s.pollMtx.RUnlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), p.Options...), nil
}

func (s *MemStore) HasVoted(id uint64, voter Identity) (bool, error) {
	s.pollMtx.RLock()
	defer s.pollMtx.RUnlock()
	if _, err := s.get(id); err != nil {
		return false, err
	}
	_, ok := s.voters[id][voter]
	return ok, nil
}

func (s *MemStore) RecordVote(id uint64, voter Identity, option int, tally Ciphertext) error {
	s.pollMtx.Lock()
	defer s.pollMtx.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if option < 0 || option >= len(p.Tally) {
		return fmt.Errorf("poll %d option %d: %w", id, option, ErrInvalidOption)
	}
	if _, ok := s.voters[id]; !ok {
		s.voters[id] = make(map[Identity]struct{})
	}
	if _, ok := s.voters[id][voter]; ok {
		return fmt.Errorf("poll %d voter %s: %w", id, voter, ErrAlreadyVoted)
	}
	s.voters[id][voter] = struct{}{}
	p.Tally[option] = append(Ciphertext(nil), tally...)
	p.TotalVoters++
	return nil
}

func (s *MemStore) MarkClosed(id uint64) error {
	s.pollMtx.Lock()
	defer s.pollMtx.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	p.Closed = true
	return nil
}

func (s *MemStore) MarkDecrypted(id uint64) error {
	s.pollMtx.Lock()
	defer s.pollMtx.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	p.Decrypted = true
	return nil
}

func (s *MemStore) PollCount() (uint64, error) {
	s.pollMtx.RLock()
	defer s.pollMtx.RUnlock()
	return uint64(len(s.polls)), nil
}

func (s *MemStore) SetDecryptor(identity Identity, authorized bool) error {
	s.accessMtx.Lock()
	defer s.accessMtx.Unlock()
	if authorized {
		s.decryptors[identity] = struct{}{}
	} else {
		delete(s.decryptors, identity)
	}
	return nil
}

func (s *MemStore) IsDecryptor(identity Identity) (bool, error) {
	s.accessMtx.RLock()
	defer s.accessMtx.RUnlock()
	_, ok := s.decryptors[identity]
	return ok, nil
}

func (s *MemStore) AddGrant(id uint64, option int, grantee Identity) error {
	s.accessMtx.Lock()
	defer s.accessMtx.Unlock()
	if _, ok := s.grants[id]; !ok {
		s.grants[id] = make(map[int]map[Identity]struct{})
	}
	if _, ok := s.grants[id][option]; !ok {
		s.grants[id][option] = make(map[Identity]struct{})
	}
	s.grants[id][option][grantee] = struct{}{}
	return nil
}

func (s *MemStore) HasGrant(id uint64, option int, grantee Identity) (bool, error) {
	s.accessMtx.RLock()
	defer s.accessMtx.RUnlock()
	_, ok := s.grants[id][option][grantee]
	return ok, nil
}

// Grantees returns the grantees of an option sorted by identity.
func (s *MemStore) Grantees(id uint64, option int) ([]Identity, error) {
	s.accessMtx.RLock()
	defer s.accessMtx.RUnlock()
	grantees := make([]Identity, 0, len(s.grants[id][option]))
	for grantee := range s.grants[id][option] {
		grantees = append(grantees, grantee)
	}
	sort.Slice(grantees, func(i, j int) bool { return grantees[i] < grantees[j] })
	return grantees, nil
}

// get must be called with pollMtx held.
func (s *MemStore) get(id uint64) (*Poll, error) {
	if id >= uint64(len(s.polls)) {
		return nil, fmt.Errorf("poll %d: %w", id, ErrNotFound)
	}
	return s.polls[id], nil
}
