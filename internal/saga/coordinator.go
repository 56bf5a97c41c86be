package saga

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// tracer follows the teacher's context-carried-tracer convention
// (tracer.Start(ctx, "service.xxx") around each command), generalized
// from its lib-commons-provided tracer to otel's own package-level
// Tracer since this module doesn't wire lib-commons.
var tracer = otel.Tracer("lims-core/saga")

// ErrCompensated is returned by Execute when a saga did not reach
// Completed and instead finished via compensation (spec.md §4.6). It is
// not a bug report: a caller that gets ErrCompensated along with a
// Compensated instance observed the rollback path behaving correctly.
var ErrCompensated = errors.New("saga: instance finished via compensation")

// Coordinator executes SagaDefinitions against durable SagaInstance rows
// (spec.md §4.6, "the centrepiece"). One Coordinator serves every
// Definition known to the process; callers distinguish workflows by
// Definition.Name.
type Coordinator struct {
	repo        Repository
	bus         *eventbus.Bus
	clock       clock.Clock
	ids         idgen.Generator
	idempotency *IdempotencyCache
	logger      mlog.Logger
}

func NewCoordinator(repo Repository, bus *eventbus.Bus, clk clock.Clock, ids idgen.Generator, idempotency *IdempotencyCache, logger mlog.Logger) *Coordinator {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Coordinator{repo: repo, bus: bus, clock: clk, ids: ids, idempotency: idempotency, logger: logger}
}

func (c *Coordinator) publish(ctx context.Context, eventType string, payload map[string]any) {
	if c.bus == nil {
		return
	}

	if _, err := c.bus.Publish(ctx, eventType, "saga", payload, nil); err != nil {
		c.logger.Warnf("saga: publish %s: %v", eventType, err)
	}
}

func (c *Coordinator) publishState(ctx context.Context, inst *Instance) {
	c.publish(ctx, "saga.state_changed", map[string]any{
		"entity_type": "saga_instance",
		"entity_id":   inst.ID.String(),
		"actor":       "system",
		"after": map[string]any{
			"name":  inst.Name,
			"state": string(inst.State),
		},
	})
}

// checkpoint persists inst. A persistence failure is logged but does not
// itself abort forward/compensation execution: the next successful
// checkpoint catches the state up, and at worst a crash between here and
// the next checkpoint re-invokes the current step, which step.Forward/
// step.Compensation must tolerate (spec.md §4.6 idempotency).
func (c *Coordinator) checkpoint(ctx context.Context, inst *Instance) {
	if err := c.repo.Save(ctx, inst); err != nil {
		c.logger.Errorf("saga: checkpoint %s (%s) failed: %v", inst.ID, inst.Name, err)
	}
}

func transitionState(inst *Instance, to State) error {
	if !ValidateStateTransition(inst.State, to) {
		return fmt.Errorf("saga: illegal state transition %s -> %s", inst.State, to)
	}

	inst.State = to

	return nil
}

// Start persists a new instance in Created state for def and immediately
// runs it to completion or compensation. initialContext seeds ContextData
// before the first step runs; steps read their run-specific input from
// there (e.g. under an "input" key) rather than from values closed over by
// Definition's StepFuncs, so a re-invocation of an Executing step after a
// crash (spec.md §4.6) sees exactly what the original call saw instead of
// whatever the process that rebuilt the Definition happened to capture.
// initialContext may be nil.
func (c *Coordinator) Start(ctx context.Context, def *Definition, initiatorUserID *string, initialContext map[string]any) (*Instance, error) {
	now := c.clock.Now()

	if initialContext == nil {
		initialContext = map[string]any{}
	}

	inst := &Instance{
		ID:              c.ids.NewID(),
		Name:            def.Name,
		State:           StateCreated,
		ContextData:     initialContext,
		InitiatorUserID: initiatorUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, step := range def.Steps {
		inst.Steps = append(inst.Steps, StepRecord{Name: step.Name, Status: StepPending})

		if step.Compensation != nil {
			name := step.CompensationName
			if name == "" {
				name = step.Name
			}

			inst.Compensations = append(inst.Compensations, StepRecord{Name: name, Status: StepPending})
		}
	}

	if err := c.repo.Create(ctx, inst); err != nil {
		return nil, err
	}

	return c.Execute(ctx, def, inst)
}

// Cancel requests cooperative cancellation of a running instance (spec.md
// §4.6): the coordinator finishes whatever step is currently executing,
// then moves to Compensating. Cancel only flags the request; it does not
// itself drive execution (Execute checks the flag between steps).
func (c *Coordinator) Cancel(ctx context.Context, inst *Instance) {
	inst.CancelRequested = true
	c.checkpoint(ctx, inst)
}

// Execute drives inst through forward steps (resuming from whatever the
// persisted step statuses indicate) and, on failure or cancellation, runs
// compensation. It is the single entry point used by both Start (fresh
// instance) and the crash-recovery scan (persisted Running/Compensating
// instance).
func (c *Coordinator) Execute(ctx context.Context, def *Definition, inst *Instance) (*Instance, error) {
	if inst.State == StateCreated {
		if err := transitionState(inst, StateRunning); err != nil {
			return inst, err
		}

		c.checkpoint(ctx, inst)
		c.publishState(ctx, inst)
	}

	if inst.State == StateRunning {
		forwardErr := c.runForward(ctx, def, inst)
		if forwardErr == nil && !inst.CancelRequested {
			if err := transitionState(inst, StateCompleted); err != nil {
				return inst, err
			}

			c.checkpoint(ctx, inst)
			c.publishState(ctx, inst)

			return inst, nil
		}

		if err := transitionState(inst, StateCompensating); err != nil {
			return inst, err
		}

		c.checkpoint(ctx, inst)
		c.publishState(ctx, inst)
	}

	if inst.State != StateCompensating {
		// Already terminal (Completed/Compensated/Failed from a prior run).
		return inst, nil
	}

	compErr := c.runCompensation(ctx, def, inst)
	if compErr != nil {
		if err := transitionState(inst, StateFailed); err != nil {
			return inst, err
		}

		c.checkpoint(ctx, inst)
		c.publishState(ctx, inst)
		c.publish(ctx, "saga.alert", map[string]any{
			"entity_type": "saga_instance",
			"entity_id":   inst.ID.String(),
			"actor":       "system",
			"after": map[string]any{
				"name":   inst.Name,
				"reason": compErr.Error(),
			},
		})

		return inst, compErr
	}

	if err := transitionState(inst, StateCompensated); err != nil {
		return inst, err
	}

	c.checkpoint(ctx, inst)
	c.publishState(ctx, inst)
	c.publish(ctx, "saga.compensated", map[string]any{
		"entity_type": "saga_instance",
		"entity_id":   inst.ID.String(),
		"actor":       "system",
		"after":       map[string]any{"name": inst.Name},
	})

	return inst, ErrCompensated
}

// runForward executes every step in definition order starting from
// whichever step's persisted status is not yet Completed (spec.md §4.6
// crash recovery: "Pending steps start normally... Executing... re-invoked
// idempotently... Completed are skipped"). It returns the first
// non-recoverable step error, or nil once every step has completed or
// cancellation was observed.
func (c *Coordinator) runForward(ctx context.Context, def *Definition, inst *Instance) error {
	for _, step := range def.Steps {
		rec := inst.stepByName(step.Name)
		if rec == nil {
			return fmt.Errorf("saga: step %q has no persisted record", step.Name)
		}

		if rec.Status == StepCompleted {
			continue
		}

		if inst.CancelRequested {
			return nil
		}

		rec.Status = StepExecuting
		started := c.clock.Now()
		rec.StartedAt = &started
		c.checkpoint(ctx, inst)

		timeout := step.Timeout
		if timeout <= 0 {
			timeout = DefaultForwardTimeout
		}

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		output, retryCount, err := c.executeStep(stepCtx, step, inst)
		cancel()

		rec.RetryCount = retryCount
		completed := c.clock.Now()
		rec.CompletedAt = &completed

		if err != nil {
			rec.Status = StepFailed
			rec.Error = err.Error()
			c.checkpoint(ctx, inst)

			return err
		}

		rec.Status = StepCompleted
		inst.ContextData[step.Name] = output
		c.checkpoint(ctx, inst)
	}

	return nil
}

// executeStep invokes step.Forward with retry, treating a downstream
// AlreadyApplied response as success with the output it carries (spec.md
// §4.6 idempotency).
func (c *Coordinator) executeStep(ctx context.Context, step StepDefinition, inst *Instance) (map[string]any, int, error) {
	ctx, span := tracer.Start(ctx, "saga.step."+step.Name)
	defer span.End()

	var output map[string]any

	retryCount, err := doWithRetry(ctx, c.clock, step.MaxRetries, func(ctx context.Context) error {
		result, callErr := step.Forward(ctx, inst.ID, inst.ContextData)
		if callErr != nil {
			if applied, ok := alreadyAppliedOutput(callErr); ok {
				output = applied
				return nil
			}

			return callErr
		}

		output = result

		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if err == nil && c.idempotency != nil {
		c.idempotency.MarkApplied(ctx, inst.ID.String(), step.Name)
	}

	return output, retryCount, err
}

// runCompensation iterates completed forward steps in reverse, invoking
// each one's compensation if defined (spec.md §3: "the ordered
// compensation set is exactly those forward steps that reached Completed,
// reversed").
func (c *Coordinator) runCompensation(ctx context.Context, def *Definition, inst *Instance) error {
	for i := len(def.Steps) - 1; i >= 0; i-- {
		step := def.Steps[i]
		if step.Compensation == nil {
			continue
		}

		fwd := inst.stepByName(step.Name)
		if fwd == nil || fwd.Status != StepCompleted {
			continue
		}

		name := step.CompensationName
		if name == "" {
			name = step.Name
		}

		compRec := inst.compensationByName(name)
		if compRec == nil {
			return fmt.Errorf("saga: compensation %q has no persisted record", name)
		}

		if compRec.Status == StepCompleted || compRec.Status == StepSkipped {
			continue
		}

		compRec.Status = StepExecuting
		started := c.clock.Now()
		compRec.StartedAt = &started
		c.checkpoint(ctx, inst)

		timeout := step.CompensationTimeout
		if timeout <= 0 {
			timeout = DefaultCompensationTimeout
		}

		compCtx, cancel := context.WithTimeout(ctx, timeout)
		retryCount, err := c.executeCompensation(compCtx, step, inst, name)
		cancel()

		compRec.RetryCount = retryCount
		completed := c.clock.Now()
		compRec.CompletedAt = &completed

		if err != nil {
			compRec.Error = err.Error()

			if step.Mandatory {
				compRec.Status = StepFailed
				c.checkpoint(ctx, inst)

				return fmt.Errorf("mandatory compensation %q failed: %w", name, err)
			}

			compRec.Status = StepSkipped
			c.logger.Warnf("saga: best-effort compensation %q failed, skipping: %v", name, err)
			c.checkpoint(ctx, inst)

			continue
		}

		compRec.Status = StepCompleted
		c.checkpoint(ctx, inst)
	}

	return nil
}

func (c *Coordinator) executeCompensation(ctx context.Context, step StepDefinition, inst *Instance, name string) (int, error) {
	ctx, span := tracer.Start(ctx, "saga.compensation."+name)
	defer span.End()

	retryCount, err := doWithRetry(ctx, c.clock, step.CompensationMaxRetries, func(ctx context.Context) error {
		callErr := step.Compensation(ctx, inst.ID, inst.ContextData)
		if callErr != nil {
			if _, ok := alreadyAppliedOutput(callErr); ok {
				return nil
			}

			return callErr
		}

		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if err == nil && c.idempotency != nil {
		c.idempotency.MarkApplied(ctx, inst.ID.String(), "compensation:"+name)
	}

	return retryCount, err
}

// alreadyAppliedOutput reports whether err is a downstream
// "already applied" response (spec.md §4.6), and if so returns the output
// the prior successful attempt produced, so a retried step need not
// re-derive it.
func alreadyAppliedOutput(err error) (map[string]any, bool) {
	var ce *constant.CoreError
	if !errors.As(err, &ce) {
		return nil, false
	}

	applied, _ := ce.Details["already_applied"].(bool)
	if !applied {
		return nil, false
	}

	output, _ := ce.Details["output"].(map[string]any)

	return output, true
}

// RecoverAll loads every Running/Compensating instance and resumes it
// against the matching Definition (spec.md §4.6 crash recovery). defsByName
// indexes the known definitions by Definition.Name; an instance whose name
// has no matching definition is skipped and logged, since the process has
// no way to know how to continue it.
func (c *Coordinator) RecoverAll(ctx context.Context, defsByName map[string]*Definition) ([]*Instance, error) {
	instances, err := c.repo.ListRecoverable(ctx)
	if err != nil {
		return nil, err
	}

	var recovered []*Instance

	for _, inst := range instances {
		def, ok := defsByName[inst.Name]
		if !ok {
			c.logger.Errorf("saga: recovery scan found instance %s with unknown definition %q, skipping", inst.ID, inst.Name)
			continue
		}

		c.logger.Infof("saga: recovering instance %s (%s) from state %s", inst.ID, inst.Name, inst.State)

		if _, err := c.Execute(ctx, def, inst); err != nil && !errors.Is(err, ErrCompensated) {
			c.logger.Errorf("saga: recovery of %s failed: %v", inst.ID, err)
		}

		recovered = append(recovered, inst)
	}

	return recovered, nil
}
