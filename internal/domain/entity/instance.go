package entity

import "time"

// WorkflowInstance is the live or completed approval run for one concrete
// entity. At most one non-terminal instance may exist per
// (organization, entityType, entityId) at a time.
type WorkflowInstance struct {
	ID                int64      `json:"id"`
	OrganizationID    string     `json:"organization_id"`
	EntityType        string     `json:"entity_type"`
	EntityID          string     `json:"entity_id"`
	DefinitionVersion int        `json:"definition_version"`
	Status            string     `json:"status"`
	CurrentStep       int        `json:"current_step"`
	InitiatorID       string     `json:"initiator_id"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`

	// Steps is populated on reads that attach child state; persistence of
	// steps goes through their own repository.
	Steps []*StepState `json:"steps,omitempty"`
}

// IsTerminal returns true once the instance has reached a final status.
func (i *WorkflowInstance) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

// StepAt returns the attached step state for a sequence, or nil.
func (i *WorkflowInstance) StepAt(sequence int) *StepState {
	for _, s := range i.Steps {
		if s.Sequence == sequence {
			return s
		}
	}
	return nil
}
