package saga_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/saga"
	"github.com/tracseq/lims-core/pkg/constant"
)

type memoryRepository struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*saga.Instance
	saveCount int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{instances: map[uuid.UUID]*saga.Instance{}}
}

func clone(inst *saga.Instance) *saga.Instance {
	cp := *inst
	cp.Steps = append([]saga.StepRecord(nil), inst.Steps...)
	cp.Compensations = append([]saga.StepRecord(nil), inst.Compensations...)
	cp.ContextData = map[string]any{}

	for k, v := range inst.ContextData {
		cp.ContextData[k] = v
	}

	return &cp
}

func (m *memoryRepository) Create(ctx context.Context, inst *saga.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[inst.ID] = clone(inst)

	return nil
}

func (m *memoryRepository) ByID(ctx context.Context, id uuid.UUID) (*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "saga_instance", "not found")
	}

	return clone(inst), nil
}

func (m *memoryRepository) Save(ctx context.Context, inst *saga.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[inst.ID]; !ok {
		return constant.New(constant.KindNotFound, "saga_instance", "not found")
	}

	m.instances[inst.ID] = clone(inst)
	m.saveCount++

	return nil
}

func (m *memoryRepository) ListRecoverable(ctx context.Context) ([]*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*saga.Instance

	for _, inst := range m.instances {
		if inst.State == saga.StateRunning || inst.State == saga.StateCompensating {
			out = append(out, clone(inst))
		}
	}

	return out, nil
}

var _ saga.Repository = (*memoryRepository)(nil)
