package eventbus

import "time"

// Envelope is the in-memory event wrapper published on the bus, durably
// copied into the audit trail by the default audit handler (spec.md §3,
// "EventEnvelope").
type Envelope struct {
	EventID         string         `json:"event_id" bson:"event_id"`
	EventType       string         `json:"event_type" bson:"event_type"`
	Payload         map[string]any `json:"payload" bson:"payload"`
	SourceComponent string         `json:"source_component" bson:"source_component"`
	CorrelationID   *string        `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
	RetryCount      int            `json:"retry_count" bson:"retry_count"`

	// depth counts how many handler-triggered republishes produced this
	// envelope; used to enforce the depth-8 recursion cap from spec.md §4.1.
	depth int
}
