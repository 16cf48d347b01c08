package deposit

import (
	"context"
	"sync"
	"time"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

type memoryStore struct {
	mu        sync.RWMutex
	records   []Record
	byID      map[string]int
	byRequest map[string]int
	progress  map[string]Progress
}

// NewMemoryStore constructs an in-memory deposit store.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:      make(map[string]int),
		byRequest: make(map[string]int),
		progress:  make(map[string]Progress),
	}
}

func (s *memoryStore) Append(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byRequest[rec.RequestID]; ok {
		return s.records[idx], ErrDuplicateRequest
	}
	s.records = append(s.records, rec)
	idx := len(s.records) - 1
	s.byID[rec.ID] = idx
	s.byRequest[rec.RequestID] = idx
	s.progress[rec.ID] = Progress{DepositID: rec.ID, UpdatedAt: rec.CreatedAt}
	return rec, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Record{}, apperr.NotFound("deposit", id)
	}
	return s.records[idx], nil
}

func (s *memoryStore) GetByRequest(_ context.Context, requestID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byRequest[requestID]
	if !ok {
		return Record{}, apperr.NotFound("deposit request", requestID)
	}
	return s.records[idx], nil
}

func (s *memoryStore) Progress(_ context.Context, depositID string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[depositID]
	if !ok {
		return Progress{}, apperr.NotFound("deposit", depositID)
	}
	return p, nil
}

func (s *memoryStore) SaveProgress(_ context.Context, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.progress[p.DepositID]; !ok {
		return apperr.NotFound("deposit", p.DepositID)
	}
	s.progress[p.DepositID] = p
	return nil
}

func (s *memoryStore) Pending(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if s.progress[rec.ID].Complete() {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID != userID {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) List(_ context.Context, cursor string, limit int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.records) - 1
	if cursor != "" {
		idx, ok := s.byID[cursor]
		if !ok {
			return Page{}, apperr.Invalid("unknown cursor %q", cursor)
		}
		start = idx - 1
	}
	var page Page
	for i := start; i >= 0; i-- {
		page.Deposits = append(page.Deposits, s.records[i])
		if len(page.Deposits) == limit {
			if i > 0 {
				page.NextCursor = s.records[i].ID
			}
			break
		}
	}
	return page, nil
}

func (s *memoryStore) Totals(_ context.Context, userID string, since time.Time) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := Totals{KgByCategory: make(map[policy.Category]float64)}
	for _, rec := range s.records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		t.Count++
		t.Points += rec.Points
		t.KgByCategory[rec.Category] += rec.WeightKg
		if !rec.CreatedAt.Before(since) {
			t.Recent++
		}
	}
	return t, nil
}
