package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in memory only. Used by tests and as the
// embedded state of the file-backed store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Load(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Record(_ context.Context, unitID string, status Status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[unitID] = Record{
		UnitID:    unitID,
		Status:    status,
		Detail:    detail,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) IsDone(unitID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[unitID]
	return ok && rec.Status == StatusSucceeded
}

func (s *MemoryStore) Failed() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Status == StatusFailed {
			ret = append(ret, rec)
		}
	}
	return ret
}

func (s *MemoryStore) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ret Summary
	for _, rec := range s.records {
		switch rec.Status {
		case StatusSucceeded:
			ret.Succeeded++
		case StatusFailed:
			ret.Failed++
		}
	}
	return ret
}

func (s *MemoryStore) Flush(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		ret[id] = rec
	}
	return ret
}

func (s *MemoryStore) replace(records map[string]Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = records
}
