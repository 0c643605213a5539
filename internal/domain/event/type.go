package event

// Type identifies a kind of domain event.
type Type string

const (
	// TypeInstanceStarted fires when a workflow instance is created.
	TypeInstanceStarted Type = "instance.started"

	// TypeStepActivated fires when a step becomes ACTIVE.
	TypeStepActivated Type = "step.activated"

	// TypeInstanceCompleted fires on a terminal APPROVED/REJECTED
	// transition.
	TypeInstanceCompleted Type = "instance.completed"

	// TypeInstanceCancelled fires on cancellation.
	TypeInstanceCancelled Type = "instance.cancelled"
)

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}
