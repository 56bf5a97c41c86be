package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessNewSampleName is the Definition.Name of the shipped lab workflow
// (spec.md §4.6 "Concrete lab workflow").
const ProcessNewSampleName = "process_new_sample"

func stepOutput(data map[string]any, step string) (map[string]any, error) {
	raw, ok := data[step]
	if !ok {
		return nil, fmt.Errorf("saga: step %q has not produced output yet", step)
	}

	out, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("saga: step %q output has unexpected shape", step)
	}

	return out, nil
}

func sampleIDFrom(data map[string]any, step string) (uuid.UUID, error) {
	out, err := stepOutput(data, step)
	if err != nil {
		return uuid.Nil, err
	}

	raw, _ := out["sample_id"].(string)

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("saga: step %q did not produce a valid sample_id: %w", step, err)
	}

	return id, nil
}

// processNewSampleInputKey is where NewProcessNewSampleInput deposits the
// run-specific request (spec.md §4.6: crash recovery re-invokes an
// Executing step against exactly what it was given, not whatever a
// freshly-rebuilt Definition happens to close over).
const processNewSampleInputKey = "input"

// NewProcessNewSampleInput builds the initialContext Start needs to run one
// "Process New Sample" instance: the create_sample request plus the zone
// allocate_storage must place the sample in.
func NewProcessNewSampleInput(req CreateSampleRequest, requiredZone string) map[string]any {
	return map[string]any{
		processNewSampleInputKey: map[string]any{
			"name":          req.Name,
			"sample_type":   req.SampleType,
			"barcode":       req.Barcode,
			"template_id":   req.TemplateID,
			"concentration": req.Concentration,
			"volume":        req.Volume,
			"unit":          req.Unit,
			"metadata":      req.Metadata,
			"created_by":    req.CreatedBy,
			"required_zone": requiredZone,
		},
	}
}

func processNewSampleRequest(data map[string]any) (CreateSampleRequest, string, error) {
	raw, ok := data[processNewSampleInputKey].(map[string]any)
	if !ok {
		return CreateSampleRequest{}, "", fmt.Errorf("saga: process_new_sample instance has no %q in context_data", processNewSampleInputKey)
	}

	strPtr := func(key string) *string {
		switch s := raw[key].(type) {
		case string:
			return &s
		case *string:
			return s
		}

		return nil
	}

	metadata, _ := raw["metadata"].(map[string]any)
	requiredZone, _ := raw["required_zone"].(string)

	req := CreateSampleRequest{
		Name:          stringOrEmpty(raw["name"]),
		SampleType:    stringOrEmpty(raw["sample_type"]),
		Barcode:       strPtr("barcode"),
		TemplateID:    strPtr("template_id"),
		Concentration: strPtr("concentration"),
		Volume:        strPtr("volume"),
		Unit:          strPtr("unit"),
		Metadata:      metadata,
		CreatedBy:     strPtr("created_by"),
	}

	return req, requiredZone, nil
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}

// NewProcessNewSampleDefinition builds the shipped "Process New Sample"
// workflow: create_sample -> allocate_storage -> validate_sample ->
// notify, with the exact compensation mandatory/best-effort flags and
// per-step timeouts grounded on
// original_source/lims-core/transaction_service/src/saga/compensation.rs
// (DeleteSampleCompensation: mandatory, 15s; ReleaseStorageCompensation:
// best-effort, 10s; ReverseValidationCompensation: mandatory, 8s;
// CancelNotificationCompensation: best-effort, 5s, max_retries 1).
func NewProcessNewSampleDefinition(samplePort SamplePort, storagePort StoragePort, notificationPort NotificationPort) *Definition {
	return &Definition{
		Name: ProcessNewSampleName,
		Steps: []StepDefinition{
			{
				Name:       "create_sample",
				Timeout:    DefaultForwardTimeout,
				MaxRetries: DefaultMaxRetries,
				Forward: func(ctx context.Context, txnID uuid.UUID, data map[string]any) (map[string]any, error) {
					req, _, err := processNewSampleRequest(data)
					if err != nil {
						return nil, err
					}

					sampleID, err := samplePort.CreateSample(ctx, txnID, req)
					if err != nil {
						return nil, err
					}

					return map[string]any{"sample_id": sampleID.String()}, nil
				},
				CompensationName:       "delete_sample",
				CompensationTimeout:    15 * time.Second,
				CompensationMaxRetries: DefaultCompensationMaxRetries,
				Mandatory:              true,
				Compensation: func(ctx context.Context, txnID uuid.UUID, data map[string]any) error {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return err
					}

					return samplePort.DeleteSample(ctx, txnID, sampleID, true)
				},
			},
			{
				Name:       "allocate_storage",
				Timeout:    DefaultForwardTimeout,
				MaxRetries: DefaultMaxRetries,
				Forward: func(ctx context.Context, txnID uuid.UUID, data map[string]any) (map[string]any, error) {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return nil, err
					}

					_, requiredZone, err := processNewSampleRequest(data)
					if err != nil {
						return nil, err
					}

					locationID, err := storagePort.AllocateStorage(ctx, txnID, sampleID, requiredZone)
					if err != nil {
						return nil, err
					}

					return map[string]any{"location_id": locationID.String()}, nil
				},
				CompensationName:       "release_storage",
				CompensationTimeout:    10 * time.Second,
				CompensationMaxRetries: DefaultCompensationMaxRetries,
				Mandatory:              false,
				Compensation: func(ctx context.Context, txnID uuid.UUID, data map[string]any) error {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return err
					}

					out, err := stepOutput(data, "allocate_storage")
					if err != nil {
						// allocate_storage never completed; nothing was reserved.
						return nil
					}

					raw, _ := out["location_id"].(string)

					locationID, err := uuid.Parse(raw)
					if err != nil {
						return nil
					}

					return storagePort.ReleaseStorage(ctx, txnID, sampleID, locationID)
				},
			},
			{
				Name:       "validate_sample",
				Timeout:    DefaultForwardTimeout,
				MaxRetries: DefaultMaxRetries,
				Forward: func(ctx context.Context, txnID uuid.UUID, data map[string]any) (map[string]any, error) {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return nil, err
					}

					priorStatus, err := samplePort.SetStatus(ctx, txnID, sampleID, "Validated")
					if err != nil {
						return nil, err
					}

					return map[string]any{"prior_status": priorStatus, "new_status": "Validated"}, nil
				},
				CompensationName:       "revert_status",
				CompensationTimeout:    8 * time.Second,
				CompensationMaxRetries: DefaultCompensationMaxRetries,
				Mandatory:              true,
				Compensation: func(ctx context.Context, txnID uuid.UUID, data map[string]any) error {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return err
					}

					out, err := stepOutput(data, "validate_sample")
					if err != nil {
						return nil
					}

					priorStatus, _ := out["prior_status"].(string)

					_, err = samplePort.SetStatus(ctx, txnID, sampleID, priorStatus)

					return err
				},
			},
			{
				Name:       "notify",
				Timeout:    DefaultForwardTimeout,
				MaxRetries: DefaultMaxRetries,
				Forward: func(ctx context.Context, txnID uuid.UUID, data map[string]any) (map[string]any, error) {
					sampleID, err := sampleIDFrom(data, "create_sample")
					if err != nil {
						return nil, err
					}

					ids, err := notificationPort.Notify(ctx, txnID, sampleID, "sample_ready")
					if err != nil {
						return nil, err
					}

					idsAny := make([]any, len(ids))
					for i, id := range ids {
						idsAny[i] = id
					}

					return map[string]any{"notification_ids": idsAny}, nil
				},
				CompensationName:       "cancel_notifications",
				CompensationTimeout:    5 * time.Second,
				CompensationMaxRetries: 1,
				Mandatory:              false,
				Compensation: func(ctx context.Context, txnID uuid.UUID, data map[string]any) error {
					out, err := stepOutput(data, "notify")
					if err != nil {
						return nil
					}

					raw, _ := out["notification_ids"].([]any)

					ids := make([]string, 0, len(raw))
					for _, v := range raw {
						if s, ok := v.(string); ok {
							ids = append(ids, s)
						}
					}

					return notificationPort.CancelNotifications(ctx, txnID, ids)
				},
			},
		},
	}
}
