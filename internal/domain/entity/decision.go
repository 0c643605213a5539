package entity

import "time"

// Decision is an immutable fact: one actor's action on one step. Decisions
// are created once and never updated or deleted; together with Transition
// records they form the audit trail.
type Decision struct {
	ID           int64     `json:"id"`
	InstanceID   int64     `json:"instance_id"`
	StepSequence int       `json:"step_sequence"`
	ActorID      string    `json:"actor_id"`
	Action       string    `json:"action"`
	Comment      string    `json:"comment,omitempty"`
	DelegateTo   string    `json:"delegate_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
