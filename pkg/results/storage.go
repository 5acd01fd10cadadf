package results

import (
	"context"
	"sort"
	"sync"
)

// Storage persists match records.
type Storage interface {
	// Save stores a record. Saving the same match id twice
	// overwrites the earlier record.
	Save(ctx context.Context, rec *MatchRecord) error

	// Get returns the record for a match id, or ErrNotFound.
	Get(ctx context.Context, matchID string) (*MatchRecord, error)

	// List returns up to limit records, most recently finished
	// first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*MatchRecord, error)

	// Close releases backend resources.
	Close() error
}

// MemoryStorage is the in-memory backend, used by default and in
// tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*MatchRecord
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*MatchRecord)}
}

// Save stores a copy of the record.
func (s *MemoryStorage) Save(_ context.Context, rec *MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Participants = append([]ParticipantResult(nil), rec.Participants...)
	s.records[rec.MatchID] = &cp
	return nil
}

// Get returns the record for a match id.
func (s *MemoryStorage) Get(_ context.Context, matchID string) (*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns records most recently finished first.
func (s *MemoryStorage) List(_ context.Context, limit int) ([]*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*MatchRecord, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStorage) Close() error {
	return nil
}
