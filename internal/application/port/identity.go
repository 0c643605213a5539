package port

import "context"

// Identity is what the engine knows about an actor: enough to evaluate
// approver rules, nothing more.
type Identity struct {
	ActorID        string   `json:"actor_id"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
}

// HasRole reports whether the identity holds the role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IdentityResolver supplies actor identity for approver-rule checks. The
// engine treats this as an opaque lookup; implementations may consult a
// directory service, a JWT claim set, or static configuration.
type IdentityResolver interface {
	Resolve(ctx context.Context, actorID string) (*Identity, error)
}
