package entity

import (
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/rule"
)

// StepState is the live state of one approval step within an instance.
// A step is ACTIVE only when all lower-sequence steps are SATISFIED or
// SKIPPED; exactly one step is ACTIVE at any non-terminal instant.
type StepState struct {
	ID         int64             `json:"id"`
	InstanceID int64             `json:"instance_id"`
	Sequence   int               `json:"sequence"`
	Status     string            `json:"status"`
	Rule       rule.ApproverRule `json:"rule"`
	Parallel   bool              `json:"parallel"`

	// Delegations maps delegator to delegatee for this step only. The
	// delegatee's approval counts against the delegator's slot.
	Delegations map[string]string `json:"delegations,omitempty"`

	// ApprovedSlots lists the distinct approver slots already satisfied on
	// this step, keyed by the original member (a delegatee's approval is
	// recorded under the delegator's slot). Duplicate approvals from one
	// slot are accepted without effect.
	ApprovedSlots []string  `json:"approved_slots,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasApprovedSlot reports whether the slot already approved this step.
func (s *StepState) HasApprovedSlot(slot string) bool {
	for _, a := range s.ApprovedSlots {
		if a == slot {
			return true
		}
	}
	return false
}

// RequiredApprovals returns how many distinct slot approvals satisfy the
// step. Sequential steps always need one.
func (s *StepState) RequiredApprovals() int {
	if !s.Parallel {
		return 1
	}
	return s.Rule.RequiredApprovals()
}

// Satisfied reports whether enough distinct slots have approved.
func (s *StepState) Satisfied() bool {
	return len(s.ApprovedSlots) >= s.RequiredApprovals()
}
