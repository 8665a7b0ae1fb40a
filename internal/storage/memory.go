package storage

import (
	"context"
	"sort"
	"sync"

	"popos/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]float64
	plans       map[string]map[int]model.PlanRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.plans = make(map[string]map[int]model.PlanRecord)
	return nil
}

func (s *MemoryStore) SaveRunRecord(_ context.Context, record model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[record.RunID] = record
	return nil
}

func (s *MemoryStore) GetRunRecord(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.runs[runID]
	return record, ok, nil
}

func (s *MemoryStore) ListRunIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SavePlan(_ context.Context, plan model.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plans[plan.RunID] == nil {
		s.plans[plan.RunID] = make(map[int]model.PlanRecord)
	}
	s.plans[plan.RunID][plan.Generation] = plan
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, runID string, generation int) (model.PlanRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[runID][generation]
	return plan, ok, nil
}

func (s *MemoryStore) GetLatestPlan(_ context.Context, runID string) (model.PlanRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := model.PlanRecord{Generation: -1}
	found := false
	for _, plan := range s.plans[runID] {
		if plan.Generation > best.Generation {
			best = plan
			found = true
		}
	}
	return best, found, nil
}
