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

// DefinitionRepository implements port.DefinitionRepository. Definition
// rows are append-only; there is deliberately no update or delete.
type DefinitionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sqlite.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new definition version.
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			organization_id, entity_type, version, steps, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	def.CreatedAt = time.Now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		def.OrganizationID,
		def.EntityType,
		def.Version,
		string(steps),
		def.CreatedBy,
		def.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create definition", zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = id
	return nil
}

// GetLatest retrieves the highest definition version for the pair, or nil.
func (r *DefinitionRepository) GetLatest(ctx context.Context, organizationID, entityType string) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, organization_id, entity_type, version, steps, created_by, created_at
		FROM workflow_definitions
		WHERE organization_id = ? AND entity_type = ?
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanOne(ctx, query, organizationID, entityType)
}

// GetVersion retrieves a pinned definition version, or nil.
func (r *DefinitionRepository) GetVersion(ctx context.Context, organizationID, entityType string, version int) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, organization_id, entity_type, version, steps, created_by, created_at
		FROM workflow_definitions
		WHERE organization_id = ? AND entity_type = ? AND version = ?
	`
	return r.scanOne(ctx, query, organizationID, entityType, version)
}

// MaxVersion returns the highest stored version, 0 when none exists.
func (r *DefinitionRepository) MaxVersion(ctx context.Context, organizationID, entityType string) (int, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM workflow_definitions
		WHERE organization_id = ? AND entity_type = ?
	`
	var version int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, organizationID, entityType).Scan(&version); err != nil {
		r.logger.Error("Failed to get max definition version", zap.Error(err))
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return version, nil
}

func (r *DefinitionRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var steps string

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(
		&def.ID,
		&def.OrganizationID,
		&def.EntityType,
		&def.Version,
		&steps,
		&def.CreatedBy,
		&def.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	return &def, nil
}
