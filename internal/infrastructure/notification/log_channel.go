package notification

import (
	"context"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/dispatcher"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/event"
	"go.uber.org/zap"
)

// LogChannel is the reference delivery channel: it writes each notification
// to the structured log. Real deployments subscribe their own channels
// (email, chat webhook) alongside or instead of it.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log-backed notification channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Register subscribes the channel to every notification-worthy event type.
func (c *LogChannel) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeInstanceStarted, "log-channel", c.handle)
	d.Subscribe(event.TypeStepActivated, "log-channel", c.handle)
	d.Subscribe(event.TypeInstanceCompleted, "log-channel", c.handle)
	d.Subscribe(event.TypeInstanceCancelled, "log-channel", c.handle)
}

func (c *LogChannel) handle(_ context.Context, evt *event.Event) error {
	c.logger.Info("Notification",
		zap.String("event_type", evt.Type.String()),
		zap.String("event_id", evt.ID),
		zap.Int64("instance_id", evt.InstanceID),
		zap.String("entity_type", evt.EntityType),
		zap.String("entity_id", evt.EntityID),
		zap.Any("payload", evt.Payload))
	return nil
}
