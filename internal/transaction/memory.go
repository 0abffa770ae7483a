package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Transaction
	now     func() time.Time
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Transaction), now: time.Now}
}

func (r *memoryRepository) InsertOrGet(_ context.Context, t Transaction) (Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[t.Reference]; ok {
		return clone(existing), false, nil
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Details = mergeDetails(nil, t.Details)
	r.records[t.Reference] = t
	return clone(t), true, nil
}

func (r *memoryRepository) Get(_ context.Context, reference string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.records[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return clone(t), nil
}

func (r *memoryRepository) Advance(_ context.Context, reference string, from Status, u Update) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.records[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if err := checkAdvance(t, from); err != nil {
		return clone(t), err
	}
	t = clone(t)
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.Stage != "" {
		t.Stage = u.Stage
	}
	t.Details = mergeDetails(t.Details, u.Details)
	t.UpdatedAt = r.now().UTC()
	r.records[reference] = t
	return clone(t), nil
}

func (r *memoryRepository) List(_ context.Context, f Filter) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, t := range r.records {
		if f.matches(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Reference < out[j].Reference
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := f.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(t Transaction) Transaction {
	t.Details = mergeDetails(nil, t.Details)
	return t
}
