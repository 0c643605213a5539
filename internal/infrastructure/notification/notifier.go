// Package notification bridges engine callbacks onto the event dispatcher
// so that delivery channels stay decoupled from approval logic.
package notification

import (
	"context"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/dispatcher"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/event"
)

// DispatchNotifier translates engine callbacks into domain events and hands
// them to the dispatcher asynchronously. Delivery is best-effort: the engine
// has already committed by the time these fire.
type DispatchNotifier struct {
	dispatcher dispatcher.Dispatcher
}

// NewDispatchNotifier creates a notifier backed by the given dispatcher.
func NewDispatchNotifier(d dispatcher.Dispatcher) *DispatchNotifier {
	return &DispatchNotifier{dispatcher: d}
}

// OnStepActivated publishes a step.activated event naming the approvers who
// may now act.
func (n *DispatchNotifier) OnStepActivated(ctx context.Context, instance *entity.WorkflowInstance, step *entity.StepState) {
	evt := event.NewEvent(event.TypeStepActivated, instance.ID, instance.EntityType, instance.EntityID,
		map[string]interface{}{
			"organization_id": instance.OrganizationID,
			"step_sequence":   step.Sequence,
			"rule_kind":       step.Rule.Kind,
			"roles":           step.Rule.Roles,
			"users":           step.Rule.Users,
		})
	n.dispatcher.DispatchAsync(ctx, evt)
}

// OnInstanceCompleted publishes instance.completed, or instance.cancelled
// when the terminal status is CANCELLED.
func (n *DispatchNotifier) OnInstanceCompleted(ctx context.Context, instance *entity.WorkflowInstance, finalStatus string) {
	eventType := event.TypeInstanceCompleted
	if finalStatus == entity.StatusCancelled {
		eventType = event.TypeInstanceCancelled
	}
	evt := event.NewEvent(eventType, instance.ID, instance.EntityType, instance.EntityID,
		map[string]interface{}{
			"organization_id": instance.OrganizationID,
			"final_status":    finalStatus,
			"initiator_id":    instance.InitiatorID,
		})
	n.dispatcher.DispatchAsync(ctx, evt)
}

var _ port.Notifier = (*DispatchNotifier)(nil)
