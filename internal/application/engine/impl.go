package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	domainwf "github.com/nick-gallo-ethico/approvalflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// engineImpl is the concrete implementation of Engine.
type engineImpl struct {
	definitions port.DefinitionRepository
	instances   port.InstanceRepository
	steps       port.StepRepository
	decisions   port.DecisionRepository
	transitions port.TransitionRepository
	txManager   port.TransactionManager
	identity    port.IdentityResolver
	notifier    port.Notifier
	locks       *lockRegistry
	logger      *zap.Logger
}

// Option configures the engine.
type Option func(*engineImpl)

// WithNotifier sets the notification adapter invoked on state changes.
func WithNotifier(n port.Notifier) Option {
	return func(e *engineImpl) {
		e.notifier = n
	}
}

// New creates the approval workflow engine.
func New(
	definitions port.DefinitionRepository,
	instances port.InstanceRepository,
	steps port.StepRepository,
	decisions port.DecisionRepository,
	transitions port.TransitionRepository,
	txManager port.TransactionManager,
	identity port.IdentityResolver,
	logger *zap.Logger,
	opts ...Option,
) Engine {
	e := &engineImpl{
		definitions: definitions,
		instances:   instances,
		steps:       steps,
		decisions:   decisions,
		transitions: transitions,
		txManager:   txManager,
		identity:    identity,
		notifier:    port.NopNotifier{},
		locks:       newLockRegistry(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates the approval run for an entity from the pinned latest
// definition version.
func (e *engineImpl) Start(ctx context.Context, in StartInput) (*entity.WorkflowInstance, error) {
	def, err := e.definitions.GetLatest(ctx, in.OrganizationID, in.EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: no workflow definition for %s/%s", ErrNotFound, in.OrganizationID, in.EntityType)
	}

	instance := &entity.WorkflowInstance{
		OrganizationID:    in.OrganizationID,
		EntityType:        in.EntityType,
		EntityID:          in.EntityID,
		DefinitionVersion: def.Version,
		Status:            entity.StatusInProgress,
		InitiatorID:       in.InitiatorID,
	}
	if in.Deferred {
		instance.Status = entity.StatusPending
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := e.instances.GetActiveByEntity(txCtx, in.OrganizationID, in.EntityType, in.EntityID)
		if err != nil {
			return fmt.Errorf("failed to check for active instance: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: instance %d", ErrConflict, existing.ID)
		}

		if err := e.instances.Create(txCtx, instance); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		for _, tmpl := range def.Steps {
			step := &entity.StepState{
				InstanceID: instance.ID,
				Sequence:   tmpl.Sequence,
				Status:     entity.StepStatusLocked,
				Rule:       tmpl.Rule,
				Parallel:   tmpl.Parallel,
			}
			if tmpl.Sequence == 0 && !in.Deferred {
				step.Status = entity.StepStatusActive
			}
			if err := e.steps.Create(txCtx, step); err != nil {
				return fmt.Errorf("failed to create step %d: %w", tmpl.Sequence, err)
			}
			instance.Steps = append(instance.Steps, step)
		}

		return e.transitions.Create(txCtx, &entity.Transition{
			InstanceID: instance.ID,
			FromStatus: entity.StatusPending,
			ToStatus:   instance.Status,
			Cause:      entity.CauseStart,
			ActorID:    in.InitiatorID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow started",
		zap.Int64("instance_id", instance.ID),
		zap.String("entity_type", in.EntityType),
		zap.String("entity_id", in.EntityID),
		zap.Int("definition_version", def.Version),
		zap.String("status", instance.Status))

	if !in.Deferred {
		e.notifyStepActivated(ctx, instance, instance.StepAt(0))
	}
	return instance, nil
}

// Activate moves a deferred instance from PENDING to IN_PROGRESS.
func (e *engineImpl) Activate(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	instance, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	lifecycle := domainwf.NewLifecycle(domainwf.State(instance.Status))
	if !lifecycle.CanFire(domainwf.TriggerActivate) {
		return nil, fmt.Errorf("%w: cannot activate instance in status %s", ErrInvalidState, instance.Status)
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		first := instance.StepAt(0)
		if first == nil {
			return fmt.Errorf("instance %d has no step 0", instanceID)
		}
		if err := e.steps.UpdateStatus(txCtx, first.ID, entity.StepStatusActive); err != nil {
			return fmt.Errorf("failed to activate step 0: %w", err)
		}
		first.Status = entity.StepStatusActive

		if err := e.instances.UpdateStatus(txCtx, instanceID, entity.StatusInProgress, 0); err != nil {
			return fmt.Errorf("failed to update instance status: %w", err)
		}

		return e.transitions.Create(txCtx, &entity.Transition{
			InstanceID: instanceID,
			FromStatus: instance.Status,
			ToStatus:   entity.StatusInProgress,
			Cause:      entity.CauseActivate,
		})
	})
	if err != nil {
		return nil, err
	}

	instance.Status = entity.StatusInProgress
	e.notifyStepActivated(ctx, instance, instance.StepAt(0))
	return instance, nil
}

// Cancel terminally cancels a non-terminal instance.
func (e *engineImpl) Cancel(ctx context.Context, instanceID int64, actorID, reason string) (*entity.WorkflowInstance, error) {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	instance, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	// A second cancel is indistinguishable from a benign race with another
	// canceller; report the current state without error.
	if instance.Status == entity.StatusCancelled {
		return instance, nil
	}

	lifecycle := domainwf.NewLifecycle(domainwf.State(instance.Status))
	if !lifecycle.CanFire(domainwf.TriggerCancel) {
		return nil, fmt.Errorf("%w: cannot cancel instance in status %s", ErrInvalidState, instance.Status)
	}

	fromStatus := instance.Status
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.instances.UpdateStatus(txCtx, instanceID, entity.StatusCancelled, instance.CurrentStep); err != nil {
			return fmt.Errorf("failed to update instance status: %w", err)
		}
		if err := e.instances.SetCompleted(txCtx, instanceID); err != nil {
			return fmt.Errorf("failed to set completion time: %w", err)
		}
		return e.transitions.Create(txCtx, &entity.Transition{
			InstanceID: instanceID,
			FromStatus: fromStatus,
			ToStatus:   entity.StatusCancelled,
			Cause:      entity.CauseCancel,
			Reason:     reason,
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	instance.Status = entity.StatusCancelled
	now := time.Now()
	instance.CompletedAt = &now

	e.logger.Info("Workflow cancelled",
		zap.Int64("instance_id", instanceID),
		zap.String("actor_id", actorID),
		zap.String("reason", reason))

	e.notifyCompleted(ctx, instance, entity.StatusCancelled)
	return instance, nil
}

// GetStatus returns the current or most recent instance for an entity.
func (e *engineImpl) GetStatus(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error) {
	instance, err := e.instances.GetActiveByEntity(ctx, organizationID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active instance: %w", err)
	}
	if instance == nil {
		instance, err = e.instances.GetLatestByEntity(ctx, organizationID, entityType, entityID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up instance: %w", err)
		}
	}
	if instance == nil {
		return nil, nil
	}
	if err := e.attachSteps(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// GetInstance returns one instance by id with steps attached.
func (e *engineImpl) GetInstance(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	return e.loadInstance(ctx, instanceID)
}

// loadInstance fetches an instance and its steps, mapping missing rows to
// ErrNotFound.
func (e *engineImpl) loadInstance(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrNotFound, instanceID)
	}
	if err := e.attachSteps(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

func (e *engineImpl) attachSteps(ctx context.Context, instance *entity.WorkflowInstance) error {
	steps, err := e.steps.GetByInstanceID(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to load steps: %w", err)
	}
	instance.Steps = steps
	return nil
}

// notifyStepActivated invokes the notification adapter, swallowing panics.
// Notification is best-effort and must never block or fail a transition.
func (e *engineImpl) notifyStepActivated(ctx context.Context, instance *entity.WorkflowInstance, step *entity.StepState) {
	if step == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Notifier panic on step activation",
				zap.Int64("instance_id", instance.ID),
				zap.Any("panic", r))
		}
	}()
	e.notifier.OnStepActivated(ctx, instance, step)
}

func (e *engineImpl) notifyCompleted(ctx context.Context, instance *entity.WorkflowInstance, finalStatus string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Notifier panic on completion",
				zap.Int64("instance_id", instance.ID),
				zap.Any("panic", r))
		}
	}()
	e.notifier.OnInstanceCompleted(ctx, instance, finalStatus)
}
