package workflow

// NewLifecycle builds the approval lifecycle machine positioned at current:
//
//	PENDING -> IN_PROGRESS -> {APPROVED, REJECTED}
//	{PENDING, IN_PROGRESS} -> CANCELLED
//
// APPROVED, REJECTED and CANCELLED are absorbing.
func NewLifecycle(current State) StateMachine {
	b := NewBuilder()
	b.Permit(StatePending, TriggerActivate, StateInProgress)
	b.Permit(StatePending, TriggerCancel, StateCancelled)
	b.Permit(StateInProgress, TriggerApprove, StateApproved)
	b.Permit(StateInProgress, TriggerReject, StateRejected)
	b.Permit(StateInProgress, TriggerCancel, StateCancelled)
	return b.Build(current)
}
