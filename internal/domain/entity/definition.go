package entity

import (
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/rule"
)

// WorkflowDefinition is an organization-scoped, versioned template listing
// the required approval steps for one entity kind. Versions are append-only:
// edits create a new version so in-flight instances keep the steps they were
// started with.
type WorkflowDefinition struct {
	ID             int64          `json:"id"`
	OrganizationID string         `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	Version        int            `json:"version"`
	Steps          []StepTemplate `json:"steps"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
}

// StepTemplate describes one required approval step.
type StepTemplate struct {
	Sequence int               `json:"sequence"`
	Rule     rule.ApproverRule `json:"rule"`
	Parallel bool              `json:"parallel"`
}

// Validate checks the definition invariants: at least one step, sequences
// contiguous starting at 0, and a well-formed rule on every step.
func (d *WorkflowDefinition) Validate() error {
	if d.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if d.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition must have at least one step")
	}
	for i, step := range d.Steps {
		if step.Sequence != i {
			return fmt.Errorf("step sequences must be contiguous from 0: got %d at position %d", step.Sequence, i)
		}
		if err := step.Rule.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
