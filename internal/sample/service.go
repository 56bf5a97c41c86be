package sample

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// Service implements the C4 operations from spec.md §4.3. Every write
// operation emits an audit event and publishes to the bus, grounded on
// components/ledger/internal/services/command/create-organization.go's
// command-then-publish shape.
type Service struct {
	repo     Repository
	metadata *MetadataRepository
	bus      *eventbus.Bus
	clock    clock.Clock
	ids      idgen.Generator
	barcodes *BarcodeGenerator
	logger   mlog.Logger
}

func NewService(repo Repository, metadata *MetadataRepository, bus *eventbus.Bus, clk clock.Clock, ids idgen.Generator, logger mlog.Logger) *Service {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Service{
		repo:     repo,
		metadata: metadata,
		bus:      bus,
		clock:    clk,
		ids:      ids,
		barcodes: NewBarcodeGenerator(clk),
		logger:   logger,
	}
}

func (s *Service) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.bus == nil {
		return
	}

	if _, err := s.bus.Publish(ctx, eventType, "sample", payload, nil); err != nil {
		s.logger.Warnf("sample: publish %s: %v", eventType, err)
	}
}

// Create validates and inserts a new sample (spec.md §4.3).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Sample, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, constant.New(constant.KindValidation, "sample", "name cannot be empty")
	}

	if err := ValidateType(req.SampleType); err != nil {
		return nil, err
	}

	if req.TemplateID != nil && len(req.Metadata) == 0 {
		return nil, constant.New(constant.KindValidation, "sample", "template requires non-empty metadata")
	}

	barcode, err := s.resolveBarcode(ctx, req.Barcode, req.SampleType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	sm := &Sample{
		ID:            s.ids.NewID(),
		Name:          req.Name,
		Barcode:       barcode,
		SampleType:    req.SampleType,
		Status:        StatusPending,
		TemplateID:    req.TemplateID,
		Concentration: req.Concentration,
		Volume:        req.Volume,
		Unit:          req.Unit,
		QualityScore:  req.QualityScore,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     req.CreatedBy,
		UpdatedBy:     req.CreatedBy,
	}

	if err := s.repo.Create(ctx, sm); err != nil {
		return nil, err
	}

	if s.metadata != nil && len(req.Metadata) > 0 {
		if err := s.metadata.Put(ctx, sm.ID, req.Metadata); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, "sample.created", map[string]any{
		"entity_type": "sample",
		"entity_id":   sm.ID.String(),
		"actor":       derefOr(req.CreatedBy, "system"),
		"after":       sampleAuditView(sm),
	})

	return sm, nil
}

func (s *Service) resolveBarcode(ctx context.Context, requested *string, sampleType Type) (string, error) {
	if requested == nil {
		return s.barcodes.Generate(sampleType), nil
	}

	if !ValidateBarcodeFormat(*requested) {
		return "", constant.New(constant.KindValidation, "sample", "barcode does not match the required format")
	}

	exists, err := s.repo.BarcodeExists(ctx, *requested)
	if err != nil {
		return "", err
	}

	if exists {
		return "", constant.New(constant.KindDuplicateBarcode, "sample", "barcode already in use: "+*requested)
	}

	return *requested, nil
}

// Update modifies a sample's mutable fields, re-checking barcode
// uniqueness and sample type validity when either changes (spec.md §4.3).
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Sample, error) {
	current, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	before := sampleAuditView(current)
	updated := *current

	if patch.Barcode != nil && *patch.Barcode != current.Barcode {
		if !ValidateBarcodeFormat(*patch.Barcode) {
			return nil, constant.New(constant.KindValidation, "sample", "barcode does not match the required format")
		}

		exists, err := s.repo.BarcodeExists(ctx, *patch.Barcode)
		if err != nil {
			return nil, err
		}

		if exists {
			return nil, constant.New(constant.KindDuplicateBarcode, "sample", "barcode already in use: "+*patch.Barcode)
		}

		updated.Barcode = *patch.Barcode
	}

	if patch.SampleType != nil {
		if err := ValidateType(*patch.SampleType); err != nil {
			return nil, err
		}

		updated.SampleType = *patch.SampleType
	}

	if patch.Name != nil {
		updated.Name = *patch.Name
	}

	if patch.Concentration != nil {
		updated.Concentration = patch.Concentration
	}

	if patch.Volume != nil {
		updated.Volume = patch.Volume
	}

	if patch.Unit != nil {
		updated.Unit = patch.Unit
	}

	if patch.QualityScore != nil {
		updated.QualityScore = patch.QualityScore
	}

	updated.UpdatedBy = patch.UpdatedBy
	updated.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	if s.metadata != nil && patch.Metadata != nil {
		if err := s.metadata.Put(ctx, id, patch.Metadata); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, "sample.updated", map[string]any{
		"entity_type": "sample",
		"entity_id":   id.String(),
		"actor":       derefOr(patch.UpdatedBy, "system"),
		"before":      before,
		"after":       sampleAuditView(&updated),
	})

	return &updated, nil
}

// SetStatus enforces the transition table and, when a transition changes
// whether a location is required, updates location_id accordingly. A
// transition into InStorage/InSequencing that doesn't carry a locationID is
// rejected: the caller (ordinarily the saga coordinator, after a successful
// C5 allocation) must supply one.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, newStatus Status, locationID *uuid.UUID, updatedBy *string) (*Sample, error) {
	current, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(current.Status, newStatus); err != nil {
		return nil, err
	}

	if RequiresLocation(newStatus) && locationID == nil {
		return nil, constant.New(constant.KindValidation, "sample", "transition into "+string(newStatus)+" requires a location")
	}

	resolvedLocation := locationID
	if !RequiresLocation(newStatus) {
		resolvedLocation = nil
	}

	if err := s.repo.UpdateStatus(ctx, id, newStatus, resolvedLocation, updatedBy); err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = newStatus
	updated.LocationID = resolvedLocation
	updated.UpdatedAt = s.clock.Now()
	updated.UpdatedBy = updatedBy

	s.publish(ctx, "sample.status_changed", map[string]any{
		"entity_type": "sample",
		"entity_id":   id.String(),
		"actor":       derefOr(updatedBy, "system"),
		"before":      map[string]any{"status": string(current.Status)},
		"after":       map[string]any{"status": string(newStatus)},
	})

	return &updated, nil
}

// Delete soft-deletes a sample by transitioning it to Deleted. Refuses
// samples currently InSequencing (spec.md §4.3).
func (s *Service) Delete(ctx context.Context, id uuid.UUID, deletedBy *string) error {
	current, err := s.repo.ByID(ctx, id)
	if err != nil {
		return err
	}

	if current.Status == StatusInSequencing {
		return constant.New(constant.KindBusinessRule, "sample", "cannot delete a sample that is currently being sequenced")
	}

	if err := ValidateTransition(current.Status, StatusDeleted); err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusDeleted, nil, deletedBy); err != nil {
		return err
	}

	s.publish(ctx, "sample.deleted", map[string]any{
		"entity_type": "sample",
		"entity_id":   id.String(),
		"actor":       derefOr(deletedBy, "system"),
		"before":      sampleAuditView(current),
	})

	return nil
}

// Validate runs the read-only validation rules from spec.md §4.3 over the
// current row, without persisting anything.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (*ValidationResult, error) {
	sm, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{SampleID: id, IsValid: true}

	if strings.TrimSpace(sm.Name) == "" {
		result.Errors = append(result.Errors, "sample name cannot be empty")
		result.IsValid = false
	}

	if strings.TrimSpace(sm.Barcode) == "" {
		result.Errors = append(result.Errors, "barcode cannot be empty")
		result.IsValid = false
	}

	if err := ValidateType(sm.SampleType); err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.IsValid = false
	}

	if sm.Concentration != nil && sm.Concentration.Sign() <= 0 {
		result.Warnings = append(result.Warnings, "concentration should be greater than 0")
	}

	if sm.Volume != nil && sm.Volume.Sign() <= 0 {
		result.Warnings = append(result.Warnings, "volume should be greater than 0")
	}

	if sm.TemplateID != nil && s.metadata != nil {
		meta, err := s.metadata.Get(ctx, sm.ID)
		if err != nil {
			return nil, err
		}

		if len(meta) == 0 {
			result.Errors = append(result.Errors, "template requires metadata but none is set")
			result.IsValid = false
		}
	}

	return result, nil
}

func sampleAuditView(s *Sample) map[string]any {
	return map[string]any{
		"id":          s.ID.String(),
		"name":        s.Name,
		"barcode":     s.Barcode,
		"sample_type": string(s.SampleType),
		"status":      string(s.Status),
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}

	return *s
}
