// Package audit implements the append-only audit log and chain-of-custody
// reads (C8): a default event-bus handler writes one immutable row per
// event of interest, and a Mongo-backed repository serves history queries
// ordered by (timestamp, sequence).
package audit

import "time"

// Entry is one immutable audit row (spec.md §3, "AuditEntry"). Entries are
// never updated or deleted after insertion.
type Entry struct {
	EntityType    string         `bson:"entity_type" json:"entity_type"`
	EntityID      string         `bson:"entity_id" json:"entity_id"`
	Action        string         `bson:"action" json:"action"`
	Actor         string         `bson:"actor" json:"actor"`
	Timestamp     time.Time      `bson:"timestamp" json:"timestamp"`
	Before        map[string]any `bson:"before,omitempty" json:"before,omitempty"`
	After         map[string]any `bson:"after,omitempty" json:"after,omitempty"`
	CorrelationID *string        `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`

	// Sequence breaks timestamp ties (spec.md §4.5: "monotonic timestamps
	// per entity, breaking ties by a strictly increasing sequence
	// number"). Assigned by the repository on insert, not by the caller.
	Sequence int64 `bson:"sequence" json:"sequence"`
}

// mongoModel is the BSON document shape, separated from Entry the way the
// teacher separates AuditMongoDBModel from Audit
// (components/audit/internal/adapters/mongodb/audit/audit.go) so wire/BSON
// concerns don't leak into the domain type.
type mongoModel struct {
	EntityType    string         `bson:"entity_type"`
	EntityID      string         `bson:"entity_id"`
	Action        string         `bson:"action"`
	Actor         string         `bson:"actor"`
	Timestamp     time.Time      `bson:"timestamp"`
	Before        map[string]any `bson:"before,omitempty"`
	After         map[string]any `bson:"after,omitempty"`
	CorrelationID *string        `bson:"correlation_id,omitempty"`
	Sequence      int64          `bson:"sequence"`
}

func (m *mongoModel) toEntity() *Entry {
	return &Entry{
		EntityType:    m.EntityType,
		EntityID:      m.EntityID,
		Action:        m.Action,
		Actor:         m.Actor,
		Timestamp:     m.Timestamp,
		Before:        m.Before,
		After:         m.After,
		CorrelationID: m.CorrelationID,
		Sequence:      m.Sequence,
	}
}

func fromEntity(e *Entry) *mongoModel {
	return &mongoModel{
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        e.Action,
		Actor:         e.Actor,
		Timestamp:     e.Timestamp,
		Before:        e.Before,
		After:         e.After,
		CorrelationID: e.CorrelationID,
		Sequence:      e.Sequence,
	}
}
