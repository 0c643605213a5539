package port

import (
	"context"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
)

// DefinitionRepository defines persistence operations for
// WorkflowDefinition. Definitions are versioned and append-only: there is no
// update or delete.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetLatest(ctx context.Context, organizationID, entityType string) (*entity.WorkflowDefinition, error)
	GetVersion(ctx context.Context, organizationID, entityType string, version int) (*entity.WorkflowDefinition, error)
	MaxVersion(ctx context.Context, organizationID, entityType string) (int, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	// GetActiveByEntity returns the non-terminal instance for an entity, or
	// nil when none exists.
	GetActiveByEntity(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error)
	// GetLatestByEntity returns the most recent instance regardless of
	// status, or nil.
	GetLatestByEntity(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error)
	UpdateStatus(ctx context.Context, id int64, status string, currentStep int) error
	SetCompleted(ctx context.Context, id int64) error
}

// StepRepository defines persistence operations for StepState.
type StepRepository interface {
	Create(ctx context.Context, step *entity.StepState) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StepState, error)
	GetBySequence(ctx context.Context, instanceID int64, sequence int) (*entity.StepState, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateProgress(ctx context.Context, id int64, approvedSlots []string, delegations map[string]string) error
}

// DecisionRepository defines persistence operations for Decision. The store
// is insert-only; decisions are immutable audit records.
type DecisionRepository interface {
	Create(ctx context.Context, decision *entity.Decision) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Decision, error)
}

// TransitionRepository defines persistence operations for Transition. The
// store is insert-only.
type TransitionRepository interface {
	Create(ctx context.Context, transition *entity.Transition) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Transition, error)
}

// TransactionManager handles database transactions. The function runs with
// a transaction carried in ctx; repositories pick it up transparently.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
