package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/saga"
)

// SampleAdapter binds saga.SamplePort to the Sample service's HTTP surface
// (spec.md §6's POST /samples, DELETE /samples/{id}, PUT /samples/{id}/status).
type SampleAdapter struct {
	client  *client
	baseURL string
}

func NewSampleAdapter(cfg Config) *SampleAdapter {
	return &SampleAdapter{client: newClient(cfg.Timeout), baseURL: cfg.SampleServiceURL}
}

type createSampleWire struct {
	Name          string         `json:"name"`
	SampleType    string         `json:"sample_type"`
	Barcode       *string        `json:"barcode,omitempty"`
	TemplateID    *string        `json:"template_id,omitempty"`
	Concentration *string        `json:"concentration,omitempty"`
	Volume        *string        `json:"volume,omitempty"`
	Unit          *string        `json:"unit,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedBy     *string        `json:"created_by,omitempty"`
}

type sampleWire struct {
	ID string `json:"id"`
}

// CreateSample issues the saga's create_sample step: POST /samples.
func (a *SampleAdapter) CreateSample(ctx context.Context, txnID uuid.UUID, req saga.CreateSampleRequest) (uuid.UUID, error) {
	var resp sampleWire

	_, err := a.client.do(ctx, "POST", a.baseURL+"/samples", txnID, createSampleWire{
		Name:          req.Name,
		SampleType:    req.SampleType,
		Barcode:       req.Barcode,
		TemplateID:    req.TemplateID,
		Concentration: req.Concentration,
		Volume:        req.Volume,
		Unit:          req.Unit,
		Metadata:      req.Metadata,
		CreatedBy:     req.CreatedBy,
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(resp.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("adapters: create_sample returned invalid id %q: %w", resp.ID, err)
	}

	return id, nil
}

// DeleteSample issues the create_sample compensation: DELETE
// /samples/{id}?force=true&reason=saga_compensation. spec.md §4.7: a 404
// here means the sample is already gone, which is success for a
// compensation call.
func (a *SampleAdapter) DeleteSample(ctx context.Context, txnID, sampleID uuid.UUID, force bool) error {
	u := fmt.Sprintf("%s/samples/%s?force=%t&reason=saga_compensation", a.baseURL, sampleID, force)

	_, err := a.client.do(ctx, "DELETE", u, txnID, nil, nil)
	if err != nil && isNotFound(err) {
		return nil
	}

	return err
}

type setStatusWire struct {
	NewStatus string  `json:"new_status"`
	Reason    *string `json:"reason,omitempty"`
}

type setStatusResponseWire struct {
	PriorStatus string `json:"prior_status"`
}

// SetStatus issues either the validate_sample forward step or the
// revert_status compensation, both PUT /samples/{id}/status per spec.md §6.
func (a *SampleAdapter) SetStatus(ctx context.Context, txnID, sampleID uuid.UUID, status string) (string, error) {
	u := fmt.Sprintf("%s/samples/%s/status", a.baseURL, sampleID)

	var resp setStatusResponseWire

	_, err := a.client.do(ctx, "PUT", u, txnID, setStatusWire{NewStatus: status}, &resp)
	if err != nil {
		return "", err
	}

	return resp.PriorStatus, nil
}

// Health probes the Sample service's liveness.
func (a *SampleAdapter) Health(ctx context.Context) error {
	return a.client.health(ctx, a.baseURL)
}

var _ saga.SamplePort = (*SampleAdapter)(nil)
