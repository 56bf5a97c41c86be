// Package saga implements the Saga Coordinator (C6), spec.md §4.6's
// "centrepiece": durable step/compensation execution with retries,
// timeouts, crash recovery, and cooperative cancellation.
package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the SagaInstance lifecycle state (spec.md §4.6's state table).
type State string

const (
	StateCreated      State = "Created"
	StateRunning      State = "Running"
	StateCompensating State = "Compensating"
	StateCompleted    State = "Completed"
	StateCompensated  State = "Compensated"
	StateFailed       State = "Failed"
)

var stateTransitions = map[State]map[State]bool{
	StateCreated:      {StateRunning: true},
	StateRunning:      {StateCompleted: true, StateCompensating: true, StateFailed: true},
	StateCompensating: {StateCompensated: true, StateFailed: true},
	StateCompleted:    {},
	StateCompensated:  {},
	StateFailed:       {},
}

// ValidateStateTransition enforces spec.md §4.6's state table.
func ValidateStateTransition(from, to State) bool {
	allowed, ok := stateTransitions[from]
	if !ok {
		return false
	}

	return allowed[to]
}

// StepStatus is the per-step (or per-compensation) execution status.
type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepExecuting StepStatus = "Executing"
	StepCompleted StepStatus = "Completed"
	StepFailed    StepStatus = "Failed"
	StepSkipped   StepStatus = "Skipped"
)

// StepRecord is the persisted execution record for one forward step or one
// compensation (spec.md §3 Saga/TransactionContext: "steps[] (each: name,
// status, started_at, completed_at, output, retry_count, error)").
type StepRecord struct {
	Name        string
	Status      StepStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      map[string]any
	RetryCount  int
	Error       string
}

// StepFunc executes one forward step. ctx carries the per-step deadline
// (spec.md §5: "Every external call has a default timeout"). data is the
// instance's accumulated context_data, readable by later steps. The
// returned map is merged into context_data under the step's own name.
type StepFunc func(ctx context.Context, txnID uuid.UUID, data map[string]any) (map[string]any, error)

// CompensationFunc reverses one forward step. It receives the same
// context_data the forward step produced (and anything produced by steps
// ordered before it), keyed by step name.
type CompensationFunc func(ctx context.Context, txnID uuid.UUID, data map[string]any) error

// StepDefinition pairs a forward step with its optional compensation and
// the policy spec.md §4.6 attaches to each (timeout, retries, mandatory).
type StepDefinition struct {
	Name       string
	Forward    StepFunc
	Timeout    time.Duration
	MaxRetries int

	Compensation           CompensationFunc
	CompensationName       string
	CompensationTimeout    time.Duration
	CompensationMaxRetries int
	// Mandatory compensations must succeed or the saga moves to Failed and
	// an alert is published; best-effort failures are logged and skipped
	// (spec.md §4.6).
	Mandatory bool
}

// DefaultForwardTimeout and DefaultCompensationTimeout are spec.md §5's
// per-call defaults ("30s for forward, 15s for compensation").
const (
	DefaultForwardTimeout      = 30 * time.Second
	DefaultCompensationTimeout = 15 * time.Second
	// DefaultMaxRetries applies to forward steps unless overridden.
	DefaultMaxRetries = 3
	// DefaultCompensationMaxRetries is spec.md §4.6's "typically fewer
	// retries (default 2) because the environment is already degraded".
	DefaultCompensationMaxRetries = 2
)

// Definition is an ordered, named saga (spec.md §4.6's SagaDefinition).
type Definition struct {
	Name  string
	Steps []StepDefinition
}

// Instance is the persisted SagaInstance (spec.md §3).
type Instance struct {
	ID              uuid.UUID
	Name            string
	State           State
	ContextData     map[string]any
	Steps           []StepRecord
	Compensations   []StepRecord
	InitiatorUserID *string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (i *Instance) stepByName(name string) *StepRecord {
	for idx := range i.Steps {
		if i.Steps[idx].Name == name {
			return &i.Steps[idx]
		}
	}

	return nil
}

func (i *Instance) compensationByName(name string) *StepRecord {
	for idx := range i.Compensations {
		if i.Compensations[idx].Name == name {
			return &i.Compensations[idx]
		}
	}

	return nil
}
