package engine

import "errors"

// Error taxonomy of the engine. All of these are recoverable-by-caller
// conditions: a failed validation aborts before any mutation, so an
// instance is never left partially updated.
var (
	// ErrNotFound is returned when no definition or instance exists for
	// the given key. Callers should treat a missing definition as "no
	// approval required" for that entity kind.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a non-terminal instance already exists
	// for the entity.
	ErrConflict = errors.New("workflow already in progress for entity")

	// ErrInvalidState is returned when the operation is illegal for the
	// instance's current status.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrStepNotActive is returned when a decision targets a step that is
	// not currently actionable, covering both "already decided" and "not
	// yet reached". Duplicate submissions for a settled step report this
	// error instead of silently re-applying.
	ErrStepNotActive = errors.New("step is not active")

	// ErrUnauthorizedAction is returned when the actor fails the step's
	// approver-rule check.
	ErrUnauthorizedAction = errors.New("actor not authorized for step")
)
