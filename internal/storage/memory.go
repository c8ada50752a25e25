package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"archsearch/internal/model"
)

type generationKey struct {
	label string
	step  int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.ExperimentRecord
	generations map[generationKey][]model.ScoredBlueprint
	summaries   map[string][]model.GenerationSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.experiments = make(map[string]model.ExperimentRecord)
	s.generations = make(map[generationKey][]model.ScoredBlueprint)
	s.summaries = make(map[string][]model.GenerationSummary)
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, record model.ExperimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.experiments[record.Label] = record
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, label string) (model.ExperimentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.experiments[label]
	return record, ok, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]model.ExperimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ExperimentRecord, 0, len(s.experiments))
	for _, record := range s.experiments {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, label string, step int, scored []model.ScoredBlueprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.generations[generationKey{label: label, step: step}] = copyScored(scored)
	return nil
}

func (s *MemoryStore) GetGeneration(_ context.Context, label string, step int) ([]model.ScoredBlueprint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored, ok := s.generations[generationKey{label: label, step: step}]
	if !ok {
		return nil, false, nil
	}
	return copyScored(scored), true, nil
}

func (s *MemoryStore) LatestStep(_ context.Context, label string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, found := 0, false
	for key := range s.generations {
		if key.label != label {
			continue
		}
		if !found || key.step > latest {
			latest, found = key.step, true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) SaveSummaries(_ context.Context, label string, summaries []model.GenerationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := make([]model.GenerationSummary, len(summaries))
	copy(copied, summaries)
	s.summaries[label] = copied
	return nil
}

func (s *MemoryStore) GetSummaries(_ context.Context, label string) ([]model.GenerationSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[label]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationSummary, len(summaries))
	copy(copied, summaries)
	return copied, true, nil
}

var errNotInitialized = errors.New("store is not initialized")

func copyScored(scored []model.ScoredBlueprint) []model.ScoredBlueprint {
	copied := make([]model.ScoredBlueprint, len(scored))
	for i, item := range scored {
		copied[i] = item
		copied[i].History = append([]float64(nil), item.History...)
	}
	return copied
}
