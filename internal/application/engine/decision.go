package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	domainwf "github.com/nick-gallo-ethico/approvalflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// SubmitDecision validates and applies one approve/reject/delegate action.
// Validation order, first failure wins: instance non-terminal, step active,
// actor authorized. All writes for one instance are serialized by the
// per-instance lock, so two decisions racing on the same active step cannot
// both advance it: the loser re-reads the advanced state and fails with
// ErrStepNotActive.
func (e *engineImpl) SubmitDecision(ctx context.Context, in DecisionInput) (*entity.WorkflowInstance, error) {
	switch in.Action {
	case entity.ActionApprove, entity.ActionReject, entity.ActionDelegate:
	default:
		return nil, fmt.Errorf("unknown decision action: %q", in.Action)
	}
	if in.Action == entity.ActionDelegate && in.DelegateTo == "" {
		return nil, fmt.Errorf("delegate_to is required for %s", entity.ActionDelegate)
	}

	unlock := e.locks.acquire(in.InstanceID)
	defer unlock()

	instance, err := e.loadInstance(ctx, in.InstanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() {
		return nil, fmt.Errorf("%w: instance %d is %s", ErrInvalidState, instance.ID, instance.Status)
	}

	step := instance.StepAt(in.StepSequence)
	if step == nil {
		return nil, fmt.Errorf("%w: instance %d has no step %d", ErrStepNotActive, instance.ID, in.StepSequence)
	}

	// Late approvals from remaining members of an already-satisfied
	// parallel group are accepted as audit records with no state effect.
	late := false
	if step.Status != entity.StepStatusActive {
		if step.Parallel && step.Status == entity.StepStatusSatisfied && in.Action == entity.ActionApprove {
			late = true
		} else {
			return nil, fmt.Errorf("%w: step %d is %s", ErrStepNotActive, in.StepSequence, step.Status)
		}
	}

	actor, err := e.identity.Resolve(ctx, in.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor %s: %w", in.ActorID, err)
	}
	if actor.OrganizationID != instance.OrganizationID {
		return nil, fmt.Errorf("%w: actor %s belongs to another organization", ErrUnauthorizedAction, in.ActorID)
	}
	slot, ok := step.Rule.Slot(in.ActorID, actor.Roles, step.Delegations)
	if !ok {
		return nil, fmt.Errorf("%w: actor %s on step %d", ErrUnauthorizedAction, in.ActorID, in.StepSequence)
	}
	if in.Action == entity.ActionApprove && step.HasApprovedSlot(slot) {
		// Already decided for this slot.
		return nil, fmt.Errorf("%w: slot %s already approved step %d", ErrStepNotActive, slot, in.StepSequence)
	}

	decision := &entity.Decision{
		InstanceID:   instance.ID,
		StepSequence: in.StepSequence,
		ActorID:      in.ActorID,
		Action:       in.Action,
		Comment:      in.Comment,
		DelegateTo:   in.DelegateTo,
	}

	var activatedStep *entity.StepState
	finalStatus := ""

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.decisions.Create(txCtx, decision); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}

		switch in.Action {
		case entity.ActionDelegate:
			if step.Delegations == nil {
				step.Delegations = make(map[string]string)
			}
			step.Delegations[slot] = in.DelegateTo
			return e.steps.UpdateProgress(txCtx, step.ID, step.ApprovedSlots, step.Delegations)

		case entity.ActionReject:
			return e.applyReject(txCtx, instance, in, &finalStatus)

		case entity.ActionApprove:
			if late {
				return nil
			}
			return e.applyApprove(txCtx, instance, step, slot, &activatedStep, &finalStatus)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Decision applied",
		zap.Int64("instance_id", instance.ID),
		zap.Int("step", in.StepSequence),
		zap.String("actor_id", in.ActorID),
		zap.String("action", in.Action),
		zap.String("instance_status", instance.Status))

	if activatedStep != nil {
		e.notifyStepActivated(ctx, instance, activatedStep)
	}
	if finalStatus != "" {
		e.notifyCompleted(ctx, instance, finalStatus)
	}
	return instance, nil
}

// applyReject halts the whole workflow: one rejection anywhere makes the
// instance REJECTED and no further steps ever activate.
func (e *engineImpl) applyReject(txCtx context.Context, instance *entity.WorkflowInstance, in DecisionInput, finalStatus *string) error {
	lifecycle := domainwf.NewLifecycle(domainwf.State(instance.Status))
	if err := lifecycle.Fire(domainwf.TriggerReject); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if err := e.instances.UpdateStatus(txCtx, instance.ID, entity.StatusRejected, instance.CurrentStep); err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if err := e.instances.SetCompleted(txCtx, instance.ID); err != nil {
		return fmt.Errorf("failed to set completion time: %w", err)
	}
	if err := e.transitions.Create(txCtx, &entity.Transition{
		InstanceID: instance.ID,
		FromStatus: entity.StatusInProgress,
		ToStatus:   entity.StatusRejected,
		Cause:      entity.CauseReject,
		ActorID:    in.ActorID,
	}); err != nil {
		return err
	}

	instance.Status = entity.StatusRejected
	now := time.Now()
	instance.CompletedAt = &now
	*finalStatus = entity.StatusRejected
	return nil
}

// applyApprove records the slot approval and, once the step is satisfied,
// either activates the next sequence or completes the instance.
func (e *engineImpl) applyApprove(txCtx context.Context, instance *entity.WorkflowInstance, step *entity.StepState, slot string, activatedStep **entity.StepState, finalStatus *string) error {
	step.ApprovedSlots = append(step.ApprovedSlots, slot)
	if err := e.steps.UpdateProgress(txCtx, step.ID, step.ApprovedSlots, step.Delegations); err != nil {
		return fmt.Errorf("failed to update step progress: %w", err)
	}

	if !step.Satisfied() {
		// Parallel step still collecting approvals.
		return nil
	}

	if err := e.steps.UpdateStatus(txCtx, step.ID, entity.StepStatusSatisfied); err != nil {
		return fmt.Errorf("failed to satisfy step: %w", err)
	}
	step.Status = entity.StepStatusSatisfied

	next := instance.StepAt(step.Sequence + 1)
	if next != nil {
		if err := e.steps.UpdateStatus(txCtx, next.ID, entity.StepStatusActive); err != nil {
			return fmt.Errorf("failed to activate step %d: %w", next.Sequence, err)
		}
		next.Status = entity.StepStatusActive
		if err := e.instances.UpdateStatus(txCtx, instance.ID, entity.StatusInProgress, next.Sequence); err != nil {
			return fmt.Errorf("failed to advance current step: %w", err)
		}
		instance.CurrentStep = next.Sequence
		*activatedStep = next
		return nil
	}

	// Last step satisfied: the instance is approved.
	lifecycle := domainwf.NewLifecycle(domainwf.State(instance.Status))
	if err := lifecycle.Fire(domainwf.TriggerApprove); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := e.instances.UpdateStatus(txCtx, instance.ID, entity.StatusApproved, instance.CurrentStep); err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if err := e.instances.SetCompleted(txCtx, instance.ID); err != nil {
		return fmt.Errorf("failed to set completion time: %w", err)
	}
	if err := e.transitions.Create(txCtx, &entity.Transition{
		InstanceID: instance.ID,
		FromStatus: entity.StatusInProgress,
		ToStatus:   entity.StatusApproved,
		Cause:      entity.CauseApprove,
	}); err != nil {
		return err
	}

	instance.Status = entity.StatusApproved
	now := time.Now()
	instance.CompletedAt = &now
	*finalStatus = entity.StatusApproved
	return nil
}
