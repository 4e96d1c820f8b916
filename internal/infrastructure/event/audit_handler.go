package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/logger"
)

// PipelineAuditHandler writes one structured log line per pipeline change.
type PipelineAuditHandler struct {
	logger *zap.Logger
}

func NewPipelineAuditHandler(l *zap.Logger) *PipelineAuditHandler {
	return &PipelineAuditHandler{logger: l.Named("audit")}
}

func (h *PipelineAuditHandler) EventTypes() []string {
	return []string{
		pipeline.EventTypeDealCreated,
		pipeline.EventTypeDealUpdated,
		pipeline.EventTypeDealRemoved,
		pipeline.EventTypeAccountOwnersChanged,
	}
}

func (h *PipelineAuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
	}
	switch e := event.(type) {
	case *pipeline.DealCreatedEvent:
		fields = append(fields,
			zap.String("deal", e.DealName),
			zap.String("account", e.AccountName),
			zap.String("stage", e.Stage.String()),
		)
	case *pipeline.DealUpdatedEvent:
		fields = append(fields,
			zap.String("deal", e.DealName),
			zap.String("account", e.AccountName),
			zap.Strings("changes", e.Changes),
		)
	case *pipeline.DealRemovedEvent:
		fields = append(fields,
			zap.String("deal", e.DealName),
			zap.String("account", e.AccountName),
		)
	case *pipeline.AccountOwnersChangedEvent:
		fields = append(fields,
			zap.String("account", e.AccountName),
			zap.Strings("changes", e.Changes),
		)
	}
	logger.L(ctx, h.logger).Info("pipeline change", fields...)
	return nil
}

var _ shared.EventHandler = (*PipelineAuditHandler)(nil)
