package saga

import (
	"context"

	"github.com/google/uuid"
)

// SamplePort is the saga's view of the Sample State Machine (C4), bindable
// either to in-process Service calls or to the HTTP adapter (C7) per
// spec.md §4.7.
type SamplePort interface {
	CreateSample(ctx context.Context, txnID uuid.UUID, req CreateSampleRequest) (uuid.UUID, error)
	DeleteSample(ctx context.Context, txnID, sampleID uuid.UUID, force bool) error
	SetStatus(ctx context.Context, txnID, sampleID uuid.UUID, status string) (priorStatus string, err error)
}

// StoragePort is the saga's view of the Storage Engine (C5).
type StoragePort interface {
	AllocateStorage(ctx context.Context, txnID, sampleID uuid.UUID, requiredZone string) (uuid.UUID, error)
	ReleaseStorage(ctx context.Context, txnID, sampleID, locationID uuid.UUID) error
}

// NotificationPort is the saga's view of the notification service; this
// module has no in-process notification component, so its only binding is
// the C7 HTTP adapter.
type NotificationPort interface {
	Notify(ctx context.Context, txnID, sampleID uuid.UUID, kind string) ([]string, error)
	CancelNotifications(ctx context.Context, txnID uuid.UUID, notificationIDs []string) error
}

// CreateSampleRequest is the subset of sample.CreateRequest the
// create_sample step needs; kept independent of the sample package so the
// saga package has no import-time dependency on C4/C5/C7.
type CreateSampleRequest struct {
	Name          string
	SampleType    string
	Barcode       *string
	TemplateID    *string
	Concentration *string
	Volume        *string
	Unit          *string
	Metadata      map[string]any
	CreatedBy     *string
}
