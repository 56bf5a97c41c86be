package sample

import (
	"github.com/tracseq/lims-core/pkg/constant"
)

// transitions is the status transition table from spec.md §4.3, extended
// with the "allow retry" edges from Failed/Rejected back to Pending that
// the table's own footer calls out. Any edge not listed here is rejected
// with InvalidWorkflowTransition.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusValidated: true,
		StatusRejected:  true,
		StatusDeleted:   true,
	},
	StatusValidated: {
		StatusInStorage:    true,
		StatusInSequencing: true,
		StatusRejected:     true,
		StatusDeleted:      true,
	},
	StatusInStorage: {
		StatusInSequencing: true,
		StatusRejected:     true,
		StatusDeleted:      true,
	},
	StatusInSequencing: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {
		StatusArchived: true,
	},
	StatusFailed: {
		StatusDeleted: true,
		StatusPending: true,
	},
	StatusRejected: {
		StatusDeleted: true,
		StatusPending: true,
	},
	StatusArchived: {},
	StatusDeleted:  {},
}

// ValidateTransition enforces the table above (spec.md §4.3).
func ValidateTransition(from, to Status) error {
	if transitions[from][to] {
		return nil
	}

	return (&constant.CoreError{
		Kind:       constant.KindInvalidWorkflowTransition,
		EntityType: "sample",
		Message:    "cannot transition sample from " + string(from) + " to " + string(to),
		Details: map[string]any{
			"current_status":   string(from),
			"requested_status": string(to),
		},
	})
}

// RequiresLocation reports whether a status mandates a non-nil location_id
// (spec.md §3: "location_id set iff status in {InStorage, InSequencing}").
func RequiresLocation(s Status) bool {
	return s == StatusInStorage || s == StatusInSequencing
}
