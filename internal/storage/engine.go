package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// Engine implements the C5 operations from spec.md §4.4. It is the sole
// authority for capacity and temperature-zone checks (spec.md §9's
// legacy-duplicate-path open question, resolved in DESIGN.md).
type Engine struct {
	repo       Repository
	bus        *eventbus.Bus
	clock      clock.Clock
	ids        idgen.Generator
	thresholds Thresholds
	logger     mlog.Logger
}

func NewEngine(repo Repository, bus *eventbus.Bus, clk clock.Clock, ids idgen.Generator, thresholds Thresholds, logger mlog.Logger) *Engine {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Engine{repo: repo, bus: bus, clock: clk, ids: ids, thresholds: thresholds, logger: logger}
}

func (e *Engine) publish(ctx context.Context, eventType string, payload map[string]any) {
	if e.bus == nil {
		return
	}

	if _, err := e.bus.Publish(ctx, eventType, "storage", payload, nil); err != nil {
		e.logger.Warnf("storage: publish %s: %v", eventType, err)
	}
}

// CreateLocation validates the zone against the configured set and inserts
// a new, empty, active location.
func (e *Engine) CreateLocation(ctx context.Context, name string, zone Zone, maxCapacity int) (*Location, error) {
	if !ValidZone(zone) {
		return nil, constant.New(constant.KindValidation, "storage_location", "zone not in configured set: "+string(zone))
	}

	if maxCapacity <= 0 {
		return nil, constant.New(constant.KindValidation, "storage_location", "max_capacity must be positive")
	}

	now := e.clock.Now()

	loc := &Location{
		ID:              e.ids.NewID(),
		Name:            name,
		TemperatureZone: zone,
		MaxCapacity:     maxCapacity,
		CurrentCapacity: 0,
		Status:          LocationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.repo.CreateLocation(ctx, loc); err != nil {
		return nil, err
	}

	return loc, nil
}

// Allocate reserves requiredCapacity units of locationID for sampleID,
// after checking the location is active, the required zone is compatible,
// and capacity remains within bounds — all under the location's row lock
// (spec.md §4.4).
func (e *Engine) Allocate(ctx context.Context, locationID, sampleID uuid.UUID, requiredZone Zone, requiredCapacity int) (*Location, error) {
	loc, err := e.repo.MutateLocationLocked(ctx, locationID, func(loc *Location) (int, error) {
		if loc.Status != LocationActive {
			return 0, constant.New(constant.KindBusinessRule, "storage_location", "location is not active: "+string(loc.Status))
		}

		if !ZoneCompatible(requiredZone, loc.TemperatureZone) {
			return 0, constant.New(constant.KindTemperatureViolation, "storage_location",
				"required zone "+string(requiredZone)+" incompatible with location zone "+string(loc.TemperatureZone))
		}

		next := loc.CurrentCapacity + requiredCapacity
		if next > loc.MaxCapacity {
			return 0, constant.New(constant.KindCapacityExceeded, "storage_location", "allocation would exceed max_capacity")
		}

		return next, nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, "storage.allocated", map[string]any{
		"entity_type": "storage_location",
		"entity_id":   locationID.String(),
		"actor":       "system",
		"after": map[string]any{
			"sample_id":        sampleID.String(),
			"location_id":      locationID.String(),
			"current_capacity": loc.CurrentCapacity,
		},
	})

	return loc, nil
}

// Release frees requiredCapacity units of locationID previously allocated
// to sampleID (spec.md §4.4: "symmetric; emits SampleMoved (to null)").
func (e *Engine) Release(ctx context.Context, locationID, sampleID uuid.UUID, requiredCapacity int) (*Location, error) {
	loc, err := e.repo.MutateLocationLocked(ctx, locationID, func(loc *Location) (int, error) {
		next := loc.CurrentCapacity - requiredCapacity
		if next < 0 {
			next = 0
		}

		return next, nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, "storage.released", map[string]any{
		"entity_type": "storage_location",
		"entity_id":   locationID.String(),
		"actor":       "system",
		"after": map[string]any{
			"sample_id":        sampleID.String(),
			"location_id":      nil,
			"current_capacity": loc.CurrentCapacity,
		},
	})

	return loc, nil
}

// Move is the composite allocate(to)-then-release(from) operation (spec.md
// §4.4): if allocation at `to` fails, `from` is left untouched.
func (e *Engine) Move(ctx context.Context, sampleID, from, to uuid.UUID, requiredZone Zone, requiredCapacity int, actor, reason string) (*Location, error) {
	toLoc, err := e.Allocate(ctx, to, sampleID, requiredZone, requiredCapacity)
	if err != nil {
		return nil, err
	}

	if _, err := e.Release(ctx, from, sampleID, requiredCapacity); err != nil {
		e.logger.Errorf("storage: move %s: allocated %s but failed to release %s: %v", sampleID, to, from, err)
		return nil, err
	}

	e.publish(ctx, "storage.moved", map[string]any{
		"entity_type": "storage_location",
		"entity_id":   sampleID.String(),
		"actor":       actor,
		"after": map[string]any{
			"sample_id": sampleID.String(),
			"from":      from.String(),
			"to":        to.String(),
			"reason":    reason,
		},
	})

	return toLoc, nil
}

// CapacityReport computes the utilization band for locationID (spec.md
// §4.4: "status = Critical if used/max >= critical_threshold; Warning if
// >= warning_threshold; Normal otherwise").
func (e *Engine) CapacityReport(ctx context.Context, locationID uuid.UUID) (*CapacityReport, error) {
	loc, err := e.repo.LocationByID(ctx, locationID)
	if err != nil {
		return nil, err
	}

	utilization := 0.0
	if loc.MaxCapacity > 0 {
		utilization = float64(loc.CurrentCapacity) / float64(loc.MaxCapacity) * 100
	}

	return &CapacityReport{
		LocationID:     locationID,
		MaxCapacity:    loc.MaxCapacity,
		UsedCapacity:   loc.CurrentCapacity,
		UtilizationPct: utilization,
		Status:         e.thresholds.classify(loc.CurrentCapacity, loc.MaxCapacity),
	}, nil
}

// CreateContainer inserts a container, enforcing that the sum of all
// container capacities at a location never exceeds the location's
// max_capacity (spec.md §3: "sum of container capacities in a location <=
// location max_capacity").
func (e *Engine) CreateContainer(ctx context.Context, barcode string, locationID uuid.UUID, position string, capacity int) (*Container, error) {
	if capacity <= 0 {
		return nil, constant.New(constant.KindValidation, "container", "capacity must be positive")
	}

	loc, err := e.repo.LocationByID(ctx, locationID)
	if err != nil {
		return nil, err
	}

	existing, err := e.repo.ContainerCapacitySum(ctx, locationID)
	if err != nil {
		return nil, err
	}

	if existing+capacity > loc.MaxCapacity {
		return nil, constant.New(constant.KindCapacityExceeded, "container", "container capacities would exceed location max_capacity")
	}

	c := &Container{
		ID:         e.ids.NewID(),
		Barcode:    barcode,
		LocationID: locationID,
		Position:   position,
		Capacity:   capacity,
		Occupants:  0,
	}

	if err := e.repo.CreateContainer(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}
