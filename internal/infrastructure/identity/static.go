// Package identity provides IdentityResolver implementations.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
)

// StaticResolver resolves actors from an in-memory table seeded at startup,
// typically from configuration. Suitable for single-node deployments and
// tests; production deployments would back this with a directory service.
type StaticResolver struct {
	mu     sync.RWMutex
	actors map[string]*port.Identity
}

// NewStaticResolver creates a resolver from a seed set. The seed slice is
// copied; later mutations of the caller's slice are not observed.
func NewStaticResolver(seed []port.Identity) *StaticResolver {
	actors := make(map[string]*port.Identity, len(seed))
	for i := range seed {
		id := seed[i]
		actors[id.ActorID] = &id
	}
	return &StaticResolver{actors: actors}
}

// Resolve looks up an actor by id.
func (r *StaticResolver) Resolve(_ context.Context, actorID string) (*port.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", actorID)
	}
	out := *identity
	out.Roles = append([]string(nil), identity.Roles...)
	return &out, nil
}

// Register adds or replaces an actor entry.
func (r *StaticResolver) Register(identity port.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[identity.ActorID] = &identity
}

var _ port.IdentityResolver = (*StaticResolver)(nil)
