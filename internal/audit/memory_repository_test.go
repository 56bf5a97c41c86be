package audit_test

import (
	"context"
	"sort"
	"sync"

	"github.com/tracseq/lims-core/internal/audit"
)

// memoryRepository is a hermetic stand-in for MongoRepository, used only
// in tests so they don't require a live Mongo instance.
type memoryRepository struct {
	mu      sync.Mutex
	entries []audit.Entry
	seq     int64
}

func (m *memoryRepository) Append(ctx context.Context, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	entry.Sequence = m.seq
	m.entries = append(m.entries, *entry)

	return nil
}

func (m *memoryRepository) History(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []audit.Entry

	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out, nil
}

var _ audit.Repository = (*memoryRepository)(nil)
