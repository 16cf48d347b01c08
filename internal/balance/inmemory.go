package balance

import (
	"context"
	"sync"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	postings map[string]Posting
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: make(map[string]Account),
		postings: make(map[string]Posting),
	}
}

func (s *inMemoryStore) Create(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.UserID]; exists {
		return ErrAccountExists
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, userID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return Account{}, apperr.NotFound("user", userID)
	}
	return account, nil
}

func (s *inMemoryStore) Apply(_ context.Context, expectedVersion int64, next Account, posting Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := posting.Kind + ":" + posting.Ref
	if _, exists := s.postings[key]; exists {
		return ErrAlreadyApplied
	}

	current, ok := s.accounts[next.UserID]
	if !ok {
		return apperr.NotFound("user", next.UserID)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	if next.UsedPoints > next.TotalPoints || next.UsedPoints < 0 {
		return apperr.Invalid("used points %d exceed total %d", next.UsedPoints, next.TotalPoints)
	}

	next.Version = expectedVersion + 1
	next.CreatedAt = current.CreatedAt
	s.accounts[next.UserID] = next
	s.postings[key] = posting
	return nil
}

func (s *inMemoryStore) HasPosting(_ context.Context, kind, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.postings[kind+":"+ref]
	return exists, nil
}

func (s *inMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}
