package sample_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/sample"
	"github.com/tracseq/lims-core/pkg/constant"
)

// memoryRepository is a hermetic stand-in for sample.PostgresRepository.
type memoryRepository struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*sample.Sample
	barcode map[string]uuid.UUID
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		byID:    map[uuid.UUID]*sample.Sample{},
		barcode: map[string]uuid.UUID{},
	}
}

func clone(s *sample.Sample) *sample.Sample {
	cp := *s
	return &cp
}

func (m *memoryRepository) Create(ctx context.Context, s *sample.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.barcode[s.Barcode]; ok {
		return constant.New(constant.KindDuplicateBarcode, "sample", "duplicate barcode")
	}

	m.byID[s.ID] = clone(s)
	m.barcode[s.Barcode] = s.ID

	return nil
}

func (m *memoryRepository) ByID(ctx context.Context, id uuid.UUID) (*sample.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "sample", "sample not found")
	}

	return clone(s), nil
}

func (m *memoryRepository) ByBarcode(ctx context.Context, barcode string) (*sample.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.barcode[barcode]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "sample", "sample not found")
	}

	return clone(m.byID[id]), nil
}

func (m *memoryRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.barcode[barcode]

	return ok, nil
}

func (m *memoryRepository) Update(ctx context.Context, s *sample.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[s.ID]
	if !ok {
		return constant.New(constant.KindNotFound, "sample", "sample not found")
	}

	if current.Barcode != s.Barcode {
		delete(m.barcode, current.Barcode)
		m.barcode[s.Barcode] = s.ID
	}

	m.byID[s.ID] = clone(s)

	return nil
}

func (m *memoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status sample.Status, locationID *uuid.UUID, updatedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return constant.New(constant.KindNotFound, "sample", "sample not found")
	}

	s.Status = status
	s.LocationID = locationID
	s.UpdatedBy = updatedBy

	return nil
}

var _ sample.Repository = (*memoryRepository)(nil)
