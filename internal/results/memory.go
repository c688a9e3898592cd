package results

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/google/uuid"
)

// MemoryStore keeps runs for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[uuid.UUID]*RunRecord),
	}
}

func (s *MemoryStore) Save(_ context.Context, run *provisioning.Run) error {
	rec, err := NewRunRecord(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runs[rec.ID] = rec
	s.mu.Unlock()

	slog.Debug("Run stored", "run_id", rec.ID.String(), "entries", rec.EntryCount)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*RunRecord, error) {
	s.mu.RLock()
	rec, exists := s.runs[id]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrRunNotFound
	}
	out := *rec
	out.Entries = append([]EntryRecord(nil), rec.Entries...)
	return &out, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// List returns the newest runs first, without entries.
func (s *MemoryStore) List(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	result := make([]RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		result = append(result, rec.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit = normalizeLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
