package entity

import "time"

// Transition is one append-only record of an instance status change.
type Transition struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Cause      string    `json:"cause"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryEventKind discriminates merged audit history entries.
type HistoryEventKind string

const (
	HistoryKindTransition HistoryEventKind = "transition"
	HistoryKindDecision   HistoryEventKind = "decision"
)

// HistoryEvent is one entry of the merged, timestamp-ordered audit history
// of an instance: either a status transition or a decision.
type HistoryEvent struct {
	Kind       HistoryEventKind `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
	Transition *Transition      `json:"transition,omitempty"`
	Decision   *Decision        `json:"decision,omitempty"`
}
