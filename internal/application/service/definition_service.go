package service

import (
	"context"
	"fmt"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/engine"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"go.uber.org/zap"
)

// DefinitionService is the workflow definition store: organization-scoped,
// versioned approval templates per entity kind. Writes never mutate a
// version in place: every Put creates a new version, so definitions pinned
// by in-flight instances are unaffected by later edits.
type DefinitionService struct {
	definitions port.DefinitionRepository
	txManager   port.TransactionManager
	logger      *zap.Logger
}

// NewDefinitionService creates a new definition service.
func NewDefinitionService(definitions port.DefinitionRepository, txManager port.TransactionManager, logger *zap.Logger) *DefinitionService {
	return &DefinitionService{
		definitions: definitions,
		txManager:   txManager,
		logger:      logger,
	}
}

// Get returns the latest active definition version for the pair, or
// engine.ErrNotFound when none exists. Callers must treat "no definition"
// as "no approval required"; that policy belongs to the instance manager.
func (s *DefinitionService) Get(ctx context.Context, organizationID, entityType string) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetLatest(ctx, organizationID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: no definition for %s/%s", engine.ErrNotFound, organizationID, entityType)
	}
	return def, nil
}

// GetVersion returns a pinned definition version, used by existing
// instances so in-flight approvals are unaffected by later edits.
func (s *DefinitionService) GetVersion(ctx context.Context, organizationID, entityType string, version int) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetVersion(ctx, organizationID, entityType, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition version: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: no definition version %d for %s/%s", engine.ErrNotFound, version, organizationID, entityType)
	}
	return def, nil
}

// Put validates the definition and stores it as a new version. Existing
// versions are never overwritten.
func (s *DefinitionService) Put(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.definitions.MaxVersion(txCtx, def.OrganizationID, def.EntityType)
		if err != nil {
			return fmt.Errorf("failed to determine current version: %w", err)
		}
		def.Version = current + 1
		return s.definitions.Create(txCtx, def)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Definition version stored",
		zap.String("organization_id", def.OrganizationID),
		zap.String("entity_type", def.EntityType),
		zap.Int("version", def.Version),
		zap.Int("steps", len(def.Steps)))
	return def, nil
}
