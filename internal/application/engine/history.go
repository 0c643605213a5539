package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
)

// GetHistory merges the insert-only transition and decision records of an
// instance into one timestamp-ordered audit trail. Nothing in the engine
// ever updates or deletes these records.
func (e *engineImpl) GetHistory(ctx context.Context, instanceID int64) ([]entity.HistoryEvent, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrNotFound, instanceID)
	}

	transitions, err := e.transitions.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	decisions, err := e.decisions.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}

	events := make([]entity.HistoryEvent, 0, len(transitions)+len(decisions))
	for _, t := range transitions {
		events = append(events, entity.HistoryEvent{
			Kind:       entity.HistoryKindTransition,
			Timestamp:  t.CreatedAt,
			Transition: t,
		})
	}
	for _, d := range decisions {
		events = append(events, entity.HistoryEvent{
			Kind:      entity.HistoryKindDecision,
			Timestamp: d.CreatedAt,
			Decision:  d,
		})
	}

	// Stable sort keeps insertion order for events sharing a timestamp,
	// which matters on stores with second-granularity clocks.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return eventID(events[i]) < eventID(events[j])
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func eventID(ev entity.HistoryEvent) int64 {
	if ev.Transition != nil {
		return ev.Transition.ID
	}
	return ev.Decision.ID
}
