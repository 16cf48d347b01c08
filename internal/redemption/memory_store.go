package redemption

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	codes   map[string]string
}

// NewMemoryStore constructs an in-memory redemption store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]Record),
		codes:   make(map[string]string),
	}
}

func (s *memoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return ErrRedemptionExists
	}
	if _, taken := s.codes[rec.Code]; taken {
		return fmt.Errorf("%w: %s", apperr.ErrDuplicateCode, rec.Code)
	}
	s.records[rec.ID] = rec
	s.codes[rec.Code] = rec.ID
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, apperr.NotFound("redemption", id)
	}
	return rec, nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkUsed(_ context.Context, id string, at time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	switch {
	case !ok:
		return Record{}, apperr.NotFound("redemption", id)
	case rec.Used:
		return Record{}, fmt.Errorf("%w: redemption %s", apperr.ErrAlreadyUsed, id)
	case rec.Expired(at):
		return Record{}, fmt.Errorf("%w: redemption %s expired at %s", apperr.ErrExpired, id, rec.ExpiresAt.Format(time.RFC3339))
	}
	rec.Used = true
	rec.UsedAt = at
	s.records[id] = rec
	return rec, nil
}
