package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/saga"
)

// StorageAdapter binds saga.StoragePort to the Storage service's HTTP
// surface (spec.md §6's POST /storage/allocate, POST /storage/release).
type StorageAdapter struct {
	client  *client
	baseURL string
}

func NewStorageAdapter(cfg Config) *StorageAdapter {
	return &StorageAdapter{client: newClient(cfg.Timeout), baseURL: cfg.StorageServiceURL}
}

type allocateStorageWire struct {
	SampleID     string `json:"sample_id"`
	RequiredZone string `json:"required_zone"`
}

type allocateStorageResponseWire struct {
	LocationID string `json:"location_id"`
}

// AllocateStorage issues the saga's allocate_storage step: POST
// /storage/allocate.
func (a *StorageAdapter) AllocateStorage(ctx context.Context, txnID, sampleID uuid.UUID, requiredZone string) (uuid.UUID, error) {
	var resp allocateStorageResponseWire

	_, err := a.client.do(ctx, "POST", a.baseURL+"/storage/allocate", txnID,
		allocateStorageWire{SampleID: sampleID.String(), RequiredZone: requiredZone}, &resp)
	if err != nil {
		return uuid.Nil, err
	}

	locationID, err := uuid.Parse(resp.LocationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("adapters: allocate_storage returned invalid location_id %q: %w", resp.LocationID, err)
	}

	return locationID, nil
}

type releaseStorageWire struct {
	SampleID   string `json:"sample_id"`
	LocationID string `json:"location_id"`
	Reason     string `json:"reason"`
}

// ReleaseStorage issues the allocate_storage compensation: POST
// /storage/release. spec.md §4.7: a 404 here means the allocation is
// already gone, which is success for a compensation call.
func (a *StorageAdapter) ReleaseStorage(ctx context.Context, txnID, sampleID, locationID uuid.UUID) error {
	_, err := a.client.do(ctx, "POST", a.baseURL+"/storage/release", txnID,
		releaseStorageWire{SampleID: sampleID.String(), LocationID: locationID.String(), Reason: "saga_compensation"}, nil)
	if err != nil && isNotFound(err) {
		return nil
	}

	return err
}

// Health probes the Storage service's liveness.
func (a *StorageAdapter) Health(ctx context.Context) error {
	return a.client.health(ctx, a.baseURL)
}

var _ saga.StoragePort = (*StorageAdapter)(nil)
