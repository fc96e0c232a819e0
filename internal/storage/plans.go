package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

// DefaultPlanHistory is the number of runs kept when no limit is configured.
const DefaultPlanHistory = 50

// ErrPlanNotFound is returned when no stored run has the requested id.
var ErrPlanNotFound = errors.New("plan not found")

// PlanRecord is a completed optimization run.
type PlanRecord struct {
	ID         string
	CreatedAt  time.Time
	Comparison cutting.Comparison
}

// PlanStore keeps the history of optimization runs.
type PlanStore interface {
	Save(cmp cutting.Comparison, at time.Time) (PlanRecord, error)
	Get(id string) (PlanRecord, error)
	List() ([]PlanRecord, error)
}

// MemoryPlanStore is a bounded in-memory PlanStore. Once full, the oldest
// run is evicted.
type MemoryPlanStore struct {
	mu      sync.RWMutex
	limit   int
	order   []string
	records map[string]PlanRecord
}

// NewMemoryPlanStore creates a store holding at most limit runs.
func NewMemoryPlanStore(limit int) *MemoryPlanStore {
	if limit <= 0 {
		limit = DefaultPlanHistory
	}
	return &MemoryPlanStore{
		limit:   limit,
		records: make(map[string]PlanRecord, limit),
	}
}

// Save stores cmp under a new id.
func (s *MemoryPlanStore) Save(cmp cutting.Comparison, at time.Time) (PlanRecord, error) {
	record := PlanRecord{
		ID:         uuid.New().String(),
		CreatedAt:  at.UTC(),
		Comparison: cmp,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	for len(s.order) > s.limit {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
	return record, nil
}

// Get returns the run stored under id.
func (s *MemoryPlanStore) Get(id string) (PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return PlanRecord{}, ErrPlanNotFound
	}
	return record, nil
}

// List returns the stored runs, newest first.
func (s *MemoryPlanStore) List() ([]PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PlanRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.records[s.order[i]])
	}
	return out, nil
}
