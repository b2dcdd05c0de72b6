// Package badger is a durable poll.Store backed by BadgerDB.
package badger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/cmwaters/privpoll/poll"
)

const gcInterval = 5 * time.Minute

var _ poll.Store = (*Store)(nil)

// Store keeps polls, voter records and the access relations in badger. Every
// method runs in a single transaction.
type Store struct {
	db *badger.DB

	// createMtx serializes poll id assignment. Every other write touches keys
	// of a single poll, which the engine already serializes.
	createMtx sync.Mutex

	dataDir      string
	gcEnabled    bool
	gcStop       chan struct{}
	gcWg         sync.WaitGroup
	promRegistry prometheus.Registerer
	writes       *prometheus.CounterVec
	logger       zerolog.Logger
}

// New opens the store. Close must be called to release it.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		gcEnabled: true,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		s.gcEnabled = false
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(s.dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(s.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	s.db = db

	if s.promRegistry != nil {
		s.writes = promauto.With(s.promRegistry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "privpoll",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Committed store writes by operation",
		}, []string{"op"})
	}
	if s.gcEnabled {
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.gc()
	}
	return s, nil
}

func (s *Store) gc() {
	defer s.gcWg.Done()
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					// run again while it keeps reclaiming space
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn().Err(err).Msg("value log gc failed")
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *Store) CreatePoll(p *poll.Poll) (uint64, error) {
	s.createMtx.Lock()
	defer s.createMtx.Unlock()
	var id uint64
	err := s.update("create_poll", func(txn *badger.Txn) error {
		var err error
		id, err = pollCount(txn)
		if err != nil {
			return err
		}
		stored := p.Copy()
		stored.ID = id
		if err := putPoll(txn, stored); err != nil {
			return err
		}
		return txn.Set(pollCountKey, binary.BigEndian.AppendUint64(nil, id+1))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetPoll(id uint64) (*poll.Poll, error) {
	var p *poll.Poll
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getPoll(txn, id)
		return err
	})
	return p, err
}

func (s *Store) GetOptions(id uint64) ([]string, error) {
	p, err := s.GetPoll(id)
	if err != nil {
		return nil, err
	}
	return p.Options, nil
}

func (s *Store) HasVoted(id uint64, voter poll.Identity) (bool, error) {
	var voted bool
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getPoll(txn, id); err != nil {
			return err
		}
		var err error
		voted, err = exists(txn, voterKey(id, voter))
		return err
	})
	return voted, err
}

func (s *Store) RecordVote(id uint64, voter poll.Identity, option int, tally poll.Ciphertext) error {
	return s.update("record_vote", func(txn *badger.Txn) error {
		p, err := getPoll(txn, id)
		if err != nil {
			return err
		}
		if option < 0 || option >= len(p.Tally) {
			return fmt.Errorf("poll %d option %d: %w", id, option, poll.ErrInvalidOption)
		}
		key := voterKey(id, voter)
		voted, err := exists(txn, key)
		if err != nil {
			return err
		}
		if voted {
			return fmt.Errorf("poll %d voter %s: %w", id, voter, poll.ErrAlreadyVoted)
		}
		p.Tally[option] = tally
		p.TotalVoters++
		if err := txn.Set(key, nil); err != nil {
			return err
		}
		return putPoll(txn, p)
	})
}

func (s *Store) MarkClosed(id uint64) error {
	return s.modify("mark_closed", id, func(p *poll.Poll) { p.Closed = true })
}

func (s *Store) MarkDecrypted(id uint64) error {
	return s.modify("mark_decrypted", id, func(p *poll.Poll) { p.Decrypted = true })
}

func (s *Store) PollCount() (uint64, error) {
	var count uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = pollCount(txn)
		return err
	})
	return count, err
}

func (s *Store) SetDecryptor(identity poll.Identity, authorized bool) error {
	return s.update("set_decryptor", func(txn *badger.Txn) error {
		if authorized {
			return txn.Set(decryptorKey(identity), nil)
		}
		return txn.Delete(decryptorKey(identity))
	})
}

func (s *Store) IsDecryptor(identity poll.Identity) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, decryptorKey(identity))
		return err
	})
	return ok, err
}

func (s *Store) AddGrant(id uint64, option int, grantee poll.Identity) error {
	return s.update("add_grant", func(txn *badger.Txn) error {
		return txn.Set(grantKey(id, option, grantee), nil)
	})
}

func (s *Store) HasGrant(id uint64, option int, grantee poll.Identity) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, grantKey(id, option, grantee))
		return err
	})
	return ok, err
}

// Grantees returns the grantees of an option in key order, which is the
// byte order of the identities.
func (s *Store) Grantees(id uint64, option int) ([]poll.Identity, error) {
	prefix := grantOptionPrefix(id, option)
	grantees := []poll.Identity{}
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		itOpts.Prefix = prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			grantees = append(grantees, poll.Identity(key[len(prefix):]))
		}
		return nil
	})
	return grantees, err
}

func (s *Store) modify(op string, id uint64, fn func(*poll.Poll)) error {
	return s.update(op, func(txn *badger.Txn) error {
		p, err := getPoll(txn, id)
		if err != nil {
			return err
		}
		fn(p)
		return putPoll(txn, p)
	})
}

func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		return err
	}
	if s.writes != nil {
		s.writes.WithLabelValues(op).Inc()
	}
	return nil
}

func getPoll(txn *badger.Txn, id uint64) (*poll.Poll, error) {
	item, err := txn.Get(pollKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("poll %d: %w", id, poll.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p := &poll.Poll{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, p)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding poll %d: %w", id, err)
	}
	return p, nil
}

func putPoll(txn *badger.Txn, p *poll.Poll) error {
	bz, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding poll %d: %w", p.ID, err)
	}
	return txn.Set(pollKey(p.ID), bz)
}

func pollCount(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(pollCountKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt poll count of %d bytes", len(val))
		}
		count = binary.BigEndian.Uint64(val)
		return nil
	})
	return count, err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}
