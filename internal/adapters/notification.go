package adapters

import (
	"context"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/saga"
)

// NotificationAdapter binds saga.NotificationPort to the Notification
// service's HTTP surface (spec.md §6's POST /notifications/cancel; the
// outbound "send" side has no documented wire contract in §6, so Notify
// posts to the same service's base path using the same envelope shape).
type NotificationAdapter struct {
	client  *client
	baseURL string
}

func NewNotificationAdapter(cfg Config) *NotificationAdapter {
	return &NotificationAdapter{client: newClient(cfg.Timeout), baseURL: cfg.NotificationServiceURL}
}

type notifyWire struct {
	SampleID string `json:"sample_id"`
	Kind     string `json:"kind"`
}

type notifyResponseWire struct {
	NotificationIDs []string `json:"notification_ids"`
}

// Notify issues the saga's notify step.
func (a *NotificationAdapter) Notify(ctx context.Context, txnID, sampleID uuid.UUID, kind string) ([]string, error) {
	var resp notifyResponseWire

	_, err := a.client.do(ctx, "POST", a.baseURL+"/notifications", txnID,
		notifyWire{SampleID: sampleID.String(), Kind: kind}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.NotificationIDs, nil
}

type cancelNotificationsWire struct {
	NotificationIDs []string `json:"notification_ids"`
	Reason          string   `json:"reason"`
}

// CancelNotifications issues the notify compensation: POST
// /notifications/cancel. spec.md §4.7: a 404 here means the notifications
// are already gone, which is success for a compensation call.
func (a *NotificationAdapter) CancelNotifications(ctx context.Context, txnID uuid.UUID, notificationIDs []string) error {
	_, err := a.client.do(ctx, "POST", a.baseURL+"/notifications/cancel", txnID,
		cancelNotificationsWire{NotificationIDs: notificationIDs, Reason: "saga_compensation"}, nil)
	if err != nil && isNotFound(err) {
		return nil
	}

	return err
}

// Health probes the Notification service's liveness.
func (a *NotificationAdapter) Health(ctx context.Context) error {
	return a.client.health(ctx, a.baseURL)
}

var _ saga.NotificationPort = (*NotificationAdapter)(nil)
