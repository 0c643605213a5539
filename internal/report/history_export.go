// Package report renders audit history into files for compliance review.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const historySheet = "History"

// HistoryExporter writes the merged audit history of an instance as an xlsx
// workbook: an instance summary block followed by one row per history event.
type HistoryExporter struct {
	logger *zap.Logger
}

// NewHistoryExporter creates a new history exporter.
func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{logger: logger}
}

// Export renders the workbook and writes it to w.
func (e *HistoryExporter) Export(instance *entity.WorkflowInstance, history []entity.HistoryEvent, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	e.fillSummary(f, instance)
	e.fillEvents(f, history)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("History exported",
		zap.Int64("instance_id", instance.ID),
		zap.Int("events", len(history)))
	return nil
}

func (e *HistoryExporter) fillSummary(f *excelize.File, instance *entity.WorkflowInstance) {
	e.setCell(f, "A1", "Instance ID")
	e.setCell(f, "B1", instance.ID)
	e.setCell(f, "A2", "Organization")
	e.setCell(f, "B2", instance.OrganizationID)
	e.setCell(f, "A3", "Entity")
	e.setCell(f, "B3", fmt.Sprintf("%s/%s", instance.EntityType, instance.EntityID))
	e.setCell(f, "A4", "Status")
	e.setCell(f, "B4", instance.Status)
	e.setCell(f, "A5", "Initiator")
	e.setCell(f, "B5", instance.InitiatorID)
	e.setCell(f, "A6", "Started")
	e.setCell(f, "B6", instance.CreatedAt.Format(time.RFC3339))
	if instance.CompletedAt != nil {
		e.setCell(f, "A7", "Completed")
		e.setCell(f, "B7", instance.CompletedAt.Format(time.RFC3339))
	}
}

func (e *HistoryExporter) fillEvents(f *excelize.File, history []entity.HistoryEvent) {
	const headerRow = 9
	headers := []string{"Timestamp", "Kind", "Actor", "Detail", "Comment"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, headerRow)
		e.setCell(f, cell, h)
	}

	for i, evt := range history {
		row := headerRow + 1 + i
		var actor, detail, comment string
		switch evt.Kind {
		case entity.HistoryKindTransition:
			actor = evt.Transition.ActorID
			detail = fmt.Sprintf("%s -> %s (%s)",
				evt.Transition.FromStatus, evt.Transition.ToStatus, evt.Transition.Cause)
			comment = evt.Transition.Reason
		case entity.HistoryKindDecision:
			actor = evt.Decision.ActorID
			detail = fmt.Sprintf("step %d: %s", evt.Decision.StepSequence, evt.Decision.Action)
			if evt.Decision.DelegateTo != "" {
				detail += " to " + evt.Decision.DelegateTo
			}
			comment = evt.Decision.Comment
		}

		values := []interface{}{
			evt.Timestamp.Format(time.RFC3339Nano),
			string(evt.Kind),
			actor,
			detail,
			comment,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			e.setCell(f, cell, v)
		}
	}
}

func (e *HistoryExporter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(historySheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}
