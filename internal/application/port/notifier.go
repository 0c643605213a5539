package port

import (
	"context"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
)

// Notifier receives engine callbacks when approval state changes. The engine
// invokes these after the owning transaction commits; implementations must
// be best-effort. A notification failure never rolls back or blocks the
// state transition, and delivery retry is owned by the external channel.
type Notifier interface {
	OnStepActivated(ctx context.Context, instance *entity.WorkflowInstance, step *entity.StepState)
	OnInstanceCompleted(ctx context.Context, instance *entity.WorkflowInstance, finalStatus string)
}

// NopNotifier discards all callbacks.
type NopNotifier struct{}

func (NopNotifier) OnStepActivated(context.Context, *entity.WorkflowInstance, *entity.StepState) {}
func (NopNotifier) OnInstanceCompleted(context.Context, *entity.WorkflowInstance, string)       {}
