package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"podds/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type genomeKey struct {
	runID  string
	poddID int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	runOrder    []string
	genomes     map[genomeKey]model.GenomeRecord
	births      map[string][]model.BirthRecord
	deaths      map[string][]model.DeathRecord
	ticks       map[string][]model.TickStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.runOrder = nil
	s.genomes = make(map[genomeKey]model.GenomeRecord)
	s.births = make(map[string][]model.BirthRecord)
	s.deaths = make(map[string][]model.DeathRecord)
	s.ticks = make(map[string][]model.TickStats)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	stamp(&run.VersionedRecord)
	if _, ok := s.runs[run.ID]; !ok {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.runOrder[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAtUTC > out[j].CreatedAtUTC
	})
	return out, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, record model.GenomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	stamp(&record.VersionedRecord)
	record.Genome = record.Genome.Clone()
	s.genomes[genomeKey{runID: record.RunID, poddID: record.PoddID}] = record
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, runID string, poddID int) (model.GenomeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.genomes[genomeKey{runID: runID, poddID: poddID}]
	if !ok {
		return model.GenomeRecord{}, false, nil
	}
	record.Genome = record.Genome.Clone()
	return record, true, nil
}

func (s *MemoryStore) AppendBirths(_ context.Context, runID string, births []model.BirthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	for _, b := range births {
		b.RunID = runID
		b.Genome = b.Genome.Clone()
		stamp(&b.VersionedRecord)
		s.births[runID] = append(s.births[runID], b)
	}
	return nil
}

func (s *MemoryStore) GetBirths(_ context.Context, runID string) ([]model.BirthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	births := s.births[runID]
	copied := make([]model.BirthRecord, len(births))
	for i, b := range births {
		b.Genome = b.Genome.Clone()
		copied[i] = b
	}
	return copied, nil
}

func (s *MemoryStore) AppendDeaths(_ context.Context, runID string, deaths []model.DeathRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	for _, d := range deaths {
		d.RunID = runID
		stamp(&d.VersionedRecord)
		s.deaths[runID] = append(s.deaths[runID], d)
	}
	return nil
}

func (s *MemoryStore) GetDeaths(_ context.Context, runID string) ([]model.DeathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.DeathRecord{}, s.deaths[runID]...), nil
}

func (s *MemoryStore) AppendTickStats(_ context.Context, runID string, stats []model.TickStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	for _, t := range stats {
		t.RunID = runID
		t.DeathsByCause = copyCounts(t.DeathsByCause)
		stamp(&t.VersionedRecord)
		s.ticks[runID] = append(s.ticks[runID], t)
	}
	return nil
}

func (s *MemoryStore) GetTickStats(_ context.Context, runID string) ([]model.TickStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := s.ticks[runID]
	copied := make([]model.TickStats, len(ticks))
	for i, t := range ticks {
		t.DeathsByCause = copyCounts(t.DeathsByCause)
		copied[i] = t
	}
	return copied, nil
}

func copyCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
