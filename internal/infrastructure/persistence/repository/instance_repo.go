package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const instanceColumns = `
	id, organization_id, entity_type, entity_id, definition_version,
	status, current_step, initiator_id, created_at, completed_at
`

// InstanceRepository implements port.InstanceRepository.
type InstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sqlite.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow instance. The partial unique index on
// non-terminal statuses backs the one-active-instance-per-entity invariant.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			organization_id, entity_type, entity_id, definition_version,
			status, current_step, initiator_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	instance.CreatedAt = time.Now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		instance.OrganizationID,
		instance.EntityType,
		instance.EntityID,
		instance.DefinitionVersion,
		instance.Status,
		instance.CurrentStep,
		instance.InitiatorID,
		instance.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	instance.ID = id
	return nil
}

// GetByID retrieves an instance by id, nil when absent.
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	return r.scanOne(ctx, query, id)
}

// GetActiveByEntity retrieves the non-terminal instance for an entity, nil
// when none exists.
func (r *InstanceRepository) GetActiveByEntity(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE organization_id = ? AND entity_type = ? AND entity_id = ?
			AND status IN (?, ?)
	`
	return r.scanOne(ctx, query, organizationID, entityType, entityID,
		entity.StatusPending, entity.StatusInProgress)
}

// GetLatestByEntity retrieves the most recent instance regardless of
// status, nil when the entity was never under approval.
func (r *InstanceRepository) GetLatestByEntity(ctx context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE organization_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.scanOne(ctx, query, organizationID, entityType, entityID)
}

// UpdateStatus updates the status and current step of an instance.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id int64, status string, currentStep int) error {
	query := `UPDATE workflow_instances SET status = ?, current_step = ? WHERE id = ?`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, status, currentStep, id); err != nil {
		r.logger.Error("Failed to update instance status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// SetCompleted stamps the completion time of a terminal instance.
func (r *InstanceRepository) SetCompleted(ctx context.Context, id int64) error {
	query := `UPDATE workflow_instances SET completed_at = ? WHERE id = ?`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, time.Now(), id); err != nil {
		r.logger.Error("Failed to set completion time", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set completion time: %w", err)
	}
	return nil
}

func (r *InstanceRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var completedAt sql.NullTime

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(
		&instance.ID,
		&instance.OrganizationID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.DefinitionVersion,
		&instance.Status,
		&instance.CurrentStep,
		&instance.InitiatorID,
		&instance.CreatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}
