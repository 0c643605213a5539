package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StepRepository implements port.StepRepository.
type StepRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sqlite.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a step state row.
func (r *StepRepository) Create(ctx context.Context, step *entity.StepState) error {
	rule, err := json.Marshal(step.Rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}
	delegations, approvedSlots, err := marshalProgress(step.ApprovedSlots, step.Delegations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_steps (
			instance_id, sequence, status, rule, parallel,
			delegations, approved_slots, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	step.UpdatedAt = time.Now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		step.InstanceID,
		step.Sequence,
		step.Status,
		string(rule),
		step.Parallel,
		delegations,
		approvedSlots,
		step.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create step", zap.Error(err))
		return fmt.Errorf("failed to create step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	step.ID = id
	return nil
}

// GetByInstanceID retrieves all steps of an instance ordered by sequence.
func (r *StepRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StepState, error) {
	query := `
		SELECT id, instance_id, sequence, status, rule, parallel,
			delegations, approved_slots, updated_at
		FROM workflow_steps
		WHERE instance_id = ?
		ORDER BY sequence ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.StepState
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetBySequence retrieves one step of an instance, nil when absent.
func (r *StepRepository) GetBySequence(ctx context.Context, instanceID int64, sequence int) (*entity.StepState, error) {
	query := `
		SELECT id, instance_id, sequence, status, rule, parallel,
			delegations, approved_slots, updated_at
		FROM workflow_steps
		WHERE instance_id = ? AND sequence = ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, instanceID, sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanStep(rows)
}

// UpdateStatus updates a step's status.
func (r *StepRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE workflow_steps SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, status, time.Now(), id); err != nil {
		r.logger.Error("Failed to update step status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update step status: %w", err)
	}
	return nil
}

// UpdateProgress persists the approved slots and delegation map of a step.
func (r *StepRepository) UpdateProgress(ctx context.Context, id int64, approvedSlots []string, delegations map[string]string) error {
	delegationsJSON, slotsJSON, err := marshalProgress(approvedSlots, delegations)
	if err != nil {
		return err
	}

	query := `UPDATE workflow_steps SET approved_slots = ?, delegations = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, slotsJSON, delegationsJSON, time.Now(), id); err != nil {
		r.logger.Error("Failed to update step progress", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update step progress: %w", err)
	}
	return nil
}

func marshalProgress(approvedSlots []string, delegations map[string]string) (delegationsJSON, slotsJSON string, err error) {
	if delegations == nil {
		delegations = map[string]string{}
	}
	if approvedSlots == nil {
		approvedSlots = []string{}
	}
	d, err := json.Marshal(delegations)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal delegations: %w", err)
	}
	s, err := json.Marshal(approvedSlots)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal approved slots: %w", err)
	}
	return string(d), string(s), nil
}

func scanStep(rows *sql.Rows) (*entity.StepState, error) {
	var step entity.StepState
	var rule, delegations, approvedSlots string

	err := rows.Scan(
		&step.ID,
		&step.InstanceID,
		&step.Sequence,
		&step.Status,
		&rule,
		&step.Parallel,
		&delegations,
		&approvedSlots,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if err := json.Unmarshal([]byte(rule), &step.Rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
	}
	if err := json.Unmarshal([]byte(delegations), &step.Delegations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delegations: %w", err)
	}
	if err := json.Unmarshal([]byte(approvedSlots), &step.ApprovedSlots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approved slots: %w", err)
	}
	return &step, nil
}
