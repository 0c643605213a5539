package engine

import (
	"context"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
)

// Engine is the approval workflow engine: instance manager, decision
// processor and audit ledger behind one interface. It is a library invoked
// by a surrounding application layer and defines no protocol of its own.
type Engine interface {
	// Start creates the approval run for an entity from the latest
	// definition version. Fails with ErrConflict when a non-terminal
	// instance already exists for the entity and ErrNotFound when no
	// definition exists for the (organization, entityType) pair.
	Start(ctx context.Context, in StartInput) (*entity.WorkflowInstance, error)

	// Activate moves a deferred (PENDING) instance to IN_PROGRESS and
	// activates its first step.
	Activate(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error)

	// Cancel terminally cancels a PENDING or IN_PROGRESS instance. It is
	// idempotent on an already-cancelled instance, since that is
	// indistinguishable from a benign race with another canceller.
	Cancel(ctx context.Context, instanceID int64, actorID, reason string) (*entity.WorkflowInstance, error)

	// GetStatus returns the current (or most recent) instance for an
	// entity with step states attached, or nil when the entity was never
	// under approval. It is a snapshot read and never blocks writers.
	GetStatus(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error)

	// GetInstance returns one instance by id with step states attached.
	GetInstance(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error)

	// SubmitDecision validates and applies one approve/reject/delegate
	// action against the instance's currently active step.
	SubmitDecision(ctx context.Context, in DecisionInput) (*entity.WorkflowInstance, error)

	// GetHistory returns the merged, timestamp-ordered audit history of an
	// instance: every status transition plus every decision.
	GetHistory(ctx context.Context, instanceID int64) ([]entity.HistoryEvent, error)
}

// StartInput carries the parameters of Start.
type StartInput struct {
	OrganizationID string `json:"organization_id"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id"`
	InitiatorID    string `json:"initiator_id"`

	// Deferred leaves the instance PENDING with every step LOCKED until
	// Activate is called, for workflows gated on an external precondition.
	Deferred bool `json:"deferred,omitempty"`
}

// DecisionInput carries the parameters of SubmitDecision.
type DecisionInput struct {
	InstanceID   int64  `json:"instance_id"`
	ActorID      string `json:"actor_id"`
	StepSequence int    `json:"step_sequence"`
	Action       string `json:"action"`
	Comment      string `json:"comment,omitempty"`

	// DelegateTo names the actor receiving the approver slot; required for
	// ActionDelegate, ignored otherwise.
	DelegateTo string `json:"delegate_to,omitempty"`
}
