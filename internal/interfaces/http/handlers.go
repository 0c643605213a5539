package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/engine"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/service"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/report"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	engine      engine.Engine
	definitions *service.DefinitionService
	exporter    *report.HistoryExporter
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	eng engine.Engine,
	definitions *service.DefinitionService,
	exporter *report.HistoryExporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:      eng,
		definitions: definitions,
		exporter:    exporter,
		logger:      logger,
	}
}

// Response represents a standard JSON response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StartWorkflowRequest is the body of POST /workflows.
type StartWorkflowRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
	EntityType     string `json:"entity_type" binding:"required"`
	EntityID       string `json:"entity_id" binding:"required"`
	InitiatorID    string `json:"initiator_id" binding:"required"`
	Deferred       bool   `json:"deferred"`
}

// CancelWorkflowRequest is the body of POST /workflows/:id/cancel.
type CancelWorkflowRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// DecisionRequest is the body of POST /workflows/:id/decisions.
type DecisionRequest struct {
	ActorID      string `json:"actor_id" binding:"required"`
	StepSequence int    `json:"step_sequence"`
	Action       string `json:"action" binding:"required"`
	Comment      string `json:"comment"`
	DelegateTo   string `json:"delegate_to"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// PutDefinition handles PUT /api/v1/definitions. The stored definition is
// always a new version; existing versions are immutable.
func (h *Handlers) PutDefinition(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.badRequest(c, "invalid definition payload", err)
		return
	}

	stored, err := h.definitions.Put(c.Request.Context(), &def)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: stored})
}

// GetDefinition handles GET /api/v1/definitions/:entityType. An explicit
// version query pin is honored; otherwise the latest version is returned.
func (h *Handlers) GetDefinition(c *gin.Context) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		h.badRequest(c, "organization_id is required", nil)
		return
	}
	entityType := c.Param("entityType")

	var def *entity.WorkflowDefinition
	var err error
	if versionStr := c.Query("version"); versionStr != "" {
		version, convErr := strconv.Atoi(versionStr)
		if convErr != nil {
			h.badRequest(c, "invalid version", convErr)
			return
		}
		def, err = h.definitions.GetVersion(c.Request.Context(), organizationID, entityType, version)
	} else {
		def, err = h.definitions.Get(c.Request.Context(), organizationID, entityType)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// StartWorkflow handles POST /api/v1/workflows.
func (h *Handlers) StartWorkflow(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid start payload", err)
		return
	}

	instance, err := h.engine.Start(c.Request.Context(), engine.StartInput{
		OrganizationID: req.OrganizationID,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		InitiatorID:    req.InitiatorID,
		Deferred:       req.Deferred,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// GetStatus handles GET /api/v1/workflows/status.
func (h *Handlers) GetStatus(c *gin.Context) {
	organizationID := c.Query("organization_id")
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")
	if organizationID == "" || entityType == "" || entityID == "" {
		h.badRequest(c, "organization_id, entity_type and entity_id are required", nil)
		return
	}

	instance, err := h.engine.GetStatus(c.Request.Context(), organizationID, entityType, entityID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if instance == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "entity has no workflow instance"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetWorkflow handles GET /api/v1/workflows/:id.
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	instance, err := h.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// ActivateWorkflow handles POST /api/v1/workflows/:id/activate.
func (h *Handlers) ActivateWorkflow(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	instance, err := h.engine.Activate(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// CancelWorkflow handles POST /api/v1/workflows/:id/cancel.
func (h *Handlers) CancelWorkflow(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	var req CancelWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid cancel payload", err)
		return
	}

	instance, err := h.engine.Cancel(c.Request.Context(), id, req.ActorID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// SubmitDecision handles POST /api/v1/workflows/:id/decisions.
func (h *Handlers) SubmitDecision(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid decision payload", err)
		return
	}

	instance, err := h.engine.SubmitDecision(c.Request.Context(), engine.DecisionInput{
		InstanceID:   id,
		ActorID:      req.ActorID,
		StepSequence: req.StepSequence,
		Action:       req.Action,
		Comment:      req.Comment,
		DelegateTo:   req.DelegateTo,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetHistory handles GET /api/v1/workflows/:id/history.
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	history, err := h.engine.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// ExportHistory handles GET /api/v1/workflows/:id/history/export and streams
// the audit trail as an xlsx workbook.
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	instance, err := h.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	history, err := h.engine.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("workflow-%d-history.xlsx", id)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := h.exporter.Export(instance, history, c.Writer); err != nil {
		h.logger.Error("History export failed", zap.Int64("instance_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

func (h *Handlers) instanceID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.badRequest(c, "invalid workflow id", err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps engine errors onto HTTP statuses: missing resources are
// 404, duplicate starts are 409, state and step violations are 422, and
// authorization failures are 403.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrStepNotActive):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnauthorizedAction):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}
