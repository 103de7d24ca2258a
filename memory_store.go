package credcore

import (
	"context"
	"sync"
)

// MemoryStore is an AccountStore held in process memory. It is meant for
// tests and single-instance tooling; records are deep-copied on the way in
// and out.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putLocked(acct.Clone())
}

func (s *MemoryStore) putLocked(acct *Account) error {
	if owner, ok := s.byEmail[acct.Email]; ok && owner != acct.ID {
		return ErrStoreConflict
	}
	if prev, ok := s.byID[acct.ID]; ok && prev.Email != acct.Email {
		delete(s.byEmail, prev.Email)
	}
	s.byID[acct.ID] = acct
	s.byEmail[acct.Email] = acct.ID
	return nil
}

// Update runs fn under the store lock against a private copy.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Account) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	if err := s.putLocked(next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(s.byEmail, a.Email)
	delete(s.byID, id)
	return nil
}

// Len reports the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
