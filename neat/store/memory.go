package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

var errNotInitialized = errors.New("store is not initialized")

type genomeID struct {
	lineage string
	key     int
}

// MemoryStore keeps encoded records in maps. Records are stored in their
// encoded form so a MemoryStore behaves like the durable backends: callers
// never share memory with what they saved.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	logs        map[string][]byte
	genomes     map[genomeID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.logs = make(map[string][]byte)
	s.genomes = make(map[genomeID][]byte)
	return nil
}

func (s *MemoryStore) SaveInnovationLog(_ context.Context, rec LogRecord) error {
	payload, err := EncodeLog(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.logs[rec.Snapshot.LineageID] = payload
	return nil
}

func (s *MemoryStore) GetInnovationLog(_ context.Context, lineageID string) (LogRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.logs[lineageID]
	s.mu.RUnlock()
	if !ok {
		return LogRecord{}, false, nil
	}
	rec, err := DecodeLog(payload)
	if err != nil {
		return LogRecord{}, false, err
	}
	return rec, true, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, rec GenomeRecord) error {
	payload, err := EncodeGenome(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.genomes[genomeID{lineage: rec.LineageID, key: rec.Key}] = payload
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, lineageID string, key int) (GenomeRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.genomes[genomeID{lineage: lineageID, key: key}]
	s.mu.RUnlock()
	if !ok {
		return GenomeRecord{}, false, nil
	}
	rec, err := DecodeGenome(payload)
	if err != nil {
		return GenomeRecord{}, false, err
	}
	return rec, true, nil
}

func (s *MemoryStore) ListGenomes(_ context.Context, lineageID string) ([]GenomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []GenomeRecord
	for id, payload := range s.genomes {
		if id.lineage != lineageID {
			continue
		}
		rec, err := DecodeGenome(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b GenomeRecord) int { return cmp.Compare(a.Key, b.Key) })
	return records, nil
}
