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

// DecisionRepository implements port.DecisionRepository. The table is
// insert-only: decisions are immutable audit records and no update or
// delete is exposed, even internally.
type DecisionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository.
func NewDecisionRepository(db *sqlite.DB, logger *zap.Logger) port.DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a decision record.
func (r *DecisionRepository) Create(ctx context.Context, decision *entity.Decision) error {
	query := `
		INSERT INTO workflow_decisions (
			instance_id, step_sequence, actor_id, action, comment, delegate_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	decision.CreatedAt = time.Now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		decision.InstanceID,
		decision.StepSequence,
		decision.ActorID,
		decision.Action,
		decision.Comment,
		decision.DelegateTo,
		decision.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create decision", zap.Error(err))
		return fmt.Errorf("failed to create decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	decision.ID = id
	return nil
}

// GetByInstanceID retrieves all decisions of an instance in insertion
// order.
func (r *DecisionRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Decision, error) {
	query := `
		SELECT id, instance_id, step_sequence, actor_id, action, comment, delegate_to, created_at
		FROM workflow_decisions
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.Decision
	for rows.Next() {
		var d entity.Decision
		err := rows.Scan(
			&d.ID,
			&d.InstanceID,
			&d.StepSequence,
			&d.ActorID,
			&d.Action,
			&d.Comment,
			&d.DelegateTo,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
