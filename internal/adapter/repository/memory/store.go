// Package memory is an in-memory implementation of the storage ports.
// It is safe for concurrent use. Data is lost on restart; use the postgres
// package for persistence.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// Store holds every account, bucket and entry in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	buckets  map[uuid.UUID]*domain.Bucket
	entries  map[uuid.UUID]*domain.Entry
	seq      map[uuid.UUID]uint64 // insertion order of entries
	next     uint64

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*domain.Account),
		buckets:  make(map[uuid.UUID]*domain.Bucket),
		entries:  make(map[uuid.UUID]*domain.Entry),
		seq:      make(map[uuid.UUID]uint64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Repositories returns repositories that lock the store on every call.
func (s *Store) Repositories() domain.Repositories {
	return s.repositories(nil)
}

func (s *Store) repositories(tx *txState) domain.Repositories {
	return domain.Repositories{
		Accounts: &accountRepository{s: s, tx: tx},
		Buckets:  &bucketRepository{s: s, tx: tx},
		Entries:  &entryRepository{s: s, tx: tx},
	}
}

// txState records how to undo every write made inside a transaction.
type txState struct {
	undo []func()
}

func (tx *txState) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// WithinTransaction holds the write lock for the whole of fn, so other callers
// never observe a half-applied transaction. When fn fails, its writes are
// undone in reverse order: created entries are deleted through the entry
// repository, other writes are restored from their previous value.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txState{}
	if err := fn(ctx, s.repositories(tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// guard takes the store lock unless the caller already holds it through a
// transaction. The returned func releases it.
func (s *Store) guard(tx *txState, write bool) func() {
	if tx != nil {
		return func() {}
	}
	if write {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// Ensure Store implements Transactor.
var _ domain.Transactor = (*Store)(nil)
