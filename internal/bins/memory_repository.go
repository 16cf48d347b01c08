package bins

import (
	"context"
	"sort"
	"sync"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/policy"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Bin
	topUps  map[string]struct{}
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage: make(map[string]Bin),
		topUps:  make(map[string]struct{}),
	}
}

func (r *memoryRepository) Create(_ context.Context, bin Bin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[bin.ID]; exists {
		return ErrBinExists
	}
	r.storage[bin.ID] = bin
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Bin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bin, ok := r.storage[id]
	if !ok {
		return Bin{}, apperr.NotFound("bin", id)
	}
	return bin, nil
}

func (r *memoryRepository) List(_ context.Context, status policy.BinStatus) ([]Bin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bin, 0, len(r.storage))
	for _, b := range r.storage {
		if status == "" || b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryRepository) Apply(_ context.Context, expectedVersion int64, next Bin, ref string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref != "" {
		if _, exists := r.topUps[ref]; exists {
			return ErrAlreadyApplied
		}
	}
	current, ok := r.storage[next.ID]
	if !ok {
		return apperr.NotFound("bin", next.ID)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	next.CreatedAt = current.CreatedAt
	r.storage[next.ID] = next
	if ref != "" {
		r.topUps[ref] = struct{}{}
	}
	return nil
}

func (r *memoryRepository) HasTopUp(_ context.Context, ref string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.topUps[ref]
	return exists, nil
}
