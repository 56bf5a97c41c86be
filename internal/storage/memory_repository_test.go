package storage_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/storage"
	"github.com/tracseq/lims-core/pkg/constant"
)

// memoryRepository is a hermetic stand-in for storage.PostgresRepository.
// MutateLocationLocked serializes on a mutex instead of a Postgres row
// lock, which is sufficient to exercise the read-check-write discipline
// the engine depends on.
type memoryRepository struct {
	mu         sync.Mutex
	locations  map[uuid.UUID]*storage.Location
	names      map[string]uuid.UUID
	containers []*storage.Container
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		locations: map[uuid.UUID]*storage.Location{},
		names:     map[string]uuid.UUID{},
	}
}

func (m *memoryRepository) CreateLocation(ctx context.Context, loc *storage.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *loc
	m.locations[loc.ID] = &cp
	m.names[loc.Name] = loc.ID

	return nil
}

func (m *memoryRepository) LocationByID(ctx context.Context, id uuid.UUID) (*storage.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.locations[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "storage_location", "not found")
	}

	cp := *loc

	return &cp, nil
}

func (m *memoryRepository) LocationByName(ctx context.Context, name string) (*storage.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.names[name]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "storage_location", "not found")
	}

	cp := *m.locations[id]

	return &cp, nil
}

func (m *memoryRepository) MutateLocationLocked(ctx context.Context, id uuid.UUID, fn func(loc *storage.Location) (int, error)) (*storage.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.locations[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "storage_location", "not found")
	}

	cp := *loc

	newCapacity, err := fn(&cp)
	if err != nil {
		return nil, err
	}

	loc.CurrentCapacity = newCapacity
	cp.CurrentCapacity = newCapacity

	return &cp, nil
}

func (m *memoryRepository) CreateContainer(ctx context.Context, c *storage.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.containers = append(m.containers, &cp)

	return nil
}

func (m *memoryRepository) ContainerCapacitySum(ctx context.Context, locationID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := 0
	for _, c := range m.containers {
		if c.LocationID == locationID {
			sum += c.Capacity
		}
	}

	return sum, nil
}

var _ storage.Repository = (*memoryRepository)(nil)
