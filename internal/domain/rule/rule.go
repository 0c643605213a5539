// Package rule models who may act on an approval step: a set of roles, a
// set of named users, optionally with an N-of-M threshold for parallel
// steps, plus per-step delegation remapping.
package rule

import "fmt"

// Kind discriminates approver rule variants.
type Kind string

const (
	// KindRoleSet authorizes any actor holding one of the listed roles.
	KindRoleSet Kind = "ROLE_SET"
	// KindUserSet authorizes the listed users only.
	KindUserSet Kind = "USER_SET"
)

// ApproverRule decides which actors may decide a step.
type ApproverRule struct {
	Kind  Kind     `json:"kind"`
	Roles []string `json:"roles,omitempty"`
	Users []string `json:"users,omitempty"`

	// Threshold, when > 0 on a parallel step, gives N-of-M semantics: the
	// step is satisfied at the Nth distinct approval. Zero means unanimous
	// for USER_SET and a single approval for ROLE_SET.
	Threshold int `json:"threshold,omitempty"`
}

// Validate checks internal consistency.
func (r *ApproverRule) Validate() error {
	switch r.Kind {
	case KindRoleSet:
		if len(r.Roles) == 0 {
			return fmt.Errorf("ROLE_SET rule requires at least one role")
		}
	case KindUserSet:
		if len(r.Users) == 0 {
			return fmt.Errorf("USER_SET rule requires at least one user")
		}
		if r.Threshold > len(r.Users) {
			return fmt.Errorf("threshold %d exceeds member count %d", r.Threshold, len(r.Users))
		}
	default:
		return fmt.Errorf("unknown rule kind: %q", r.Kind)
	}
	if r.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative")
	}
	return nil
}

// RequiredApprovals returns how many distinct slot approvals satisfy the
// rule on a parallel step.
func (r *ApproverRule) RequiredApprovals() int {
	if r.Threshold > 0 {
		return r.Threshold
	}
	if r.Kind == KindUserSet {
		return len(r.Users)
	}
	// A role set names a pool, not an enumeration, so unanimity is
	// undefined; one approval from the pool suffices.
	return 1
}

// Slot resolves the approver slot an actor occupies on a step, honoring the
// step's delegation map. The second return is false when the actor is not
// authorized: not a member, not a delegatee, or a member who has delegated
// the step away.
func (r *ApproverRule) Slot(actorID string, actorRoles []string, delegations map[string]string) (string, bool) {
	// A delegatee acts in the delegator's slot regardless of their own
	// membership.
	for delegator, delegatee := range delegations {
		if delegatee == actorID {
			return delegator, true
		}
	}
	// A member who delegated this step away may no longer act on it.
	if _, delegated := delegations[actorID]; delegated {
		return "", false
	}
	switch r.Kind {
	case KindUserSet:
		for _, u := range r.Users {
			if u == actorID {
				return actorID, true
			}
		}
	case KindRoleSet:
		for _, want := range r.Roles {
			for _, have := range actorRoles {
				if want == have {
					return actorID, true
				}
			}
		}
	}
	return "", false
}
