package entity

// Status constants for WorkflowInstance
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusApproved   = "APPROVED"
	StatusRejected   = "REJECTED"
	StatusCancelled  = "CANCELLED"
)

// Status constants for StepState
const (
	StepStatusLocked    = "LOCKED"
	StepStatusActive    = "ACTIVE"
	StepStatusSatisfied = "SATISFIED"
	StepStatusSkipped   = "SKIPPED"
)

// Action constants for Decision
const (
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionDelegate = "DELEGATE"
)

// Cause constants for Transition records
const (
	CauseStart    = "start"
	CauseActivate = "activate"
	CauseApprove  = "approve"
	CauseReject   = "reject"
	CauseCancel   = "cancel"
)

// Well-known entity types. The engine never branches on these beyond
// definition routing; entity-owning modules may register others freely.
const (
	EntityTypePolicy        = "POLICY"
	EntityTypeInvestigation = "INVESTIGATION"
	EntityTypeCaseClosure   = "CASE_CLOSURE"
)

// IsTerminalStatus returns true for instance statuses that permit no further
// transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
