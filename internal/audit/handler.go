package audit

import (
	"context"
	"fmt"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// interestingEventTypes are the events the default audit handler records
// (spec.md §4.5: "sample status changes, storage moves, auth successes/
// failures, saga state changes"). Anything else on the bus is ignored.
var interestingEventTypes = map[string]string{
	"sample.status_changed": "status_changed",
	"sample.created":        "created",
	"sample.updated":        "updated",
	"sample.deleted":        "deleted",
	"storage.allocated":     "allocated",
	"storage.released":      "released",
	"storage.moved":         "moved",
	"auth.login_success":    "login_success",
	"auth.login_failed":     "login_failed",
	"auth.account_locked":   "account_locked",
	"saga.state_changed":    "saga_state_changed",
	"saga.compensated":      "compensated",
}

// Handler bridges the event bus to the audit repository: every event of
// interest becomes one immutable row. It implements eventbus.Handler.
type Handler struct {
	repo   Repository
	clock  clock.Clock
	logger mlog.Logger
}

func NewHandler(repo Repository, clk clock.Clock, logger mlog.Logger) *Handler {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Handler{repo: repo, clock: clk, logger: logger}
}

func (h *Handler) Name() string { return "audit.default_handler" }

func (h *Handler) CanHandle(env eventbus.Envelope) bool {
	_, ok := interestingEventTypes[env.EventType]
	return ok
}

// Handle writes one audit entry per matching envelope. It never returns
// follow-up events: the audit trail is a terminal consumer, not a producer
// of further bus traffic.
func (h *Handler) Handle(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
	action, ok := interestingEventTypes[env.EventType]
	if !ok {
		return nil, nil
	}

	entityType, _ := env.Payload["entity_type"].(string)
	entityID, _ := env.Payload["entity_id"].(string)
	actor, _ := env.Payload["actor"].(string)

	if entityType == "" {
		entityType = env.SourceComponent
	}

	if entityID == "" {
		entityID = env.EventID
	}

	if actor == "" {
		actor = "system"
	}

	entry := &Entry{
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		Actor:         actor,
		Timestamp:     h.clock.Now(),
		Before:        asMap(env.Payload["before"]),
		After:         asMap(env.Payload["after"]),
		CorrelationID: env.CorrelationID,
	}

	if err := h.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit handler: append entry for %s: %w", env.EventType, err)
	}

	return nil, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

var _ eventbus.Handler = (*Handler)(nil)
