package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TransitionRepository implements port.TransitionRepository. Insert-only,
// like the decision store.
type TransitionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new transition repository.
func NewTransitionRepository(db *sqlite.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a transition record.
func (r *TransitionRepository) Create(ctx context.Context, transition *entity.Transition) error {
	query := `
		INSERT INTO workflow_transitions (
			instance_id, from_status, to_status, cause, reason, actor_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	transition.CreatedAt = time.Now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		transition.InstanceID,
		transition.FromStatus,
		transition.ToStatus,
		transition.Cause,
		transition.Reason,
		transition.ActorID,
		transition.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transition", zap.Error(err))
		return fmt.Errorf("failed to create transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	transition.ID = id
	return nil
}

// GetByInstanceID retrieves all transitions of an instance in insertion
// order.
func (r *TransitionRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Transition, error) {
	query := `
		SELECT id, instance_id, from_status, to_status, cause, reason, actor_id, created_at
		FROM workflow_transitions
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list transitions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*entity.Transition
	for rows.Next() {
		var t entity.Transition
		err := rows.Scan(
			&t.ID,
			&t.InstanceID,
			&t.FromStatus,
			&t.ToStatus,
			&t.Cause,
			&t.Reason,
			&t.ActorID,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}
