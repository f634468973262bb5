package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/perpledger/pkg/core/funding"
)

// Store provides Pebble-based persistence for accounts and the global
// market record. Thread safety comes from the ledger's mutex; the store
// itself does no locking.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists one account.
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount loads an account, or nil if it doesn't exist.
func (s *Store) LoadAccount(addr common.Address) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

// Commit writes the touched accounts and the market record in one atomic
// batch. Every mutating ledger operation funnels through here so a crash
// never splits an operation's effects.
func (s *Store) Commit(market funding.State, accounts ...*Account) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accounts {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		if err := batch.Set(accountKey(acc.Address), data, nil); err != nil {
			return err
		}
	}

	mkt, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("failed to marshal market state: %w", err)
	}
	if err := batch.Set([]byte(keyMarket), mkt, nil); err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}

// LoadMarket loads the persisted market record; ok is false on a fresh db.
func (s *Store) LoadMarket() (funding.State, bool, error) {
	data, closer, err := s.db.Get([]byte(keyMarket))
	if err == pebble.ErrNotFound {
		return funding.State{}, false, nil
	}
	if err != nil {
		return funding.State{}, false, fmt.Errorf("failed to get market state: %w", err)
	}
	defer closer.Close()

	var state funding.State
	if err := json.Unmarshal(data, &state); err != nil {
		return funding.State{}, false, fmt.Errorf("failed to unmarshal market state: %w", err)
	}
	return state, true, nil
}

// Digest hashes the persisted ledger state: every account record in key
// order, then the market record. Pebble iterates keys lexicographically
// and struct JSON is field-ordered, so the digest is deterministic for a
// given state.
func (s *Store) Digest() ([32]byte, error) {
	h := sha3.New256()

	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to open digest iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		h.Write(iter.Key())
		h.Write(iter.Value())
	}

	if data, closer, err := s.db.Get([]byte(keyMarket)); err == nil {
		h.Write([]byte(keyMarket))
		h.Write(data)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return [32]byte{}, fmt.Errorf("failed to read market state: %w", err)
	}

	var digest [32]byte
	h.Sum(digest[:0])
	return digest, nil
}
