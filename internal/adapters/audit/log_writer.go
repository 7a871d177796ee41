// Package audit contains the audit trail adapter for the diary service.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/puma/internal/ctxutil"
	"github.com/example/puma/internal/ports/secondary"
)

// LogWriterAdapter implements secondary.LogWriter by emitting one structured
// zap entry per change.
type LogWriterAdapter struct {
	logger  *zap.Logger
	backend string
}

// NewLogWriterAdapter creates a new LogWriterAdapter. backend is attached to
// every entry so a trail can be traced to the engine that stored it.
func NewLogWriterAdapter(logger *zap.Logger, backend string) *LogWriterAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogWriterAdapter{
		logger:  logger.Named("audit"),
		backend: backend,
	}
}

// LogCreate logs a create operation for an entity.
func (w *LogWriterAdapter) LogCreate(ctx context.Context, entityType, entityID string) error {
	return w.writeLog(ctx, entityType, entityID, "create")
}

// LogUpdate logs an update operation for an entity field.
func (w *LogWriterAdapter) LogUpdate(ctx context.Context, entityType, entityID, fieldName, oldValue, newValue string) error {
	return w.writeLog(ctx, entityType, entityID, "update",
		zap.String("field", fieldName),
		zap.String("old", oldValue),
		zap.String("new", newValue))
}

// LogDelete logs a delete operation for an entity.
func (w *LogWriterAdapter) LogDelete(ctx context.Context, entityType, entityID string) error {
	return w.writeLog(ctx, entityType, entityID, "delete")
}

func (w *LogWriterAdapter) writeLog(ctx context.Context, entityType, entityID, action string, extra ...zap.Field) error {
	actorID := ctxutil.ActorFromContext(ctx)
	if actorID == "" {
		actorID = "unknown"
	}

	fields := append([]zap.Field{
		zap.String("actor", actorID),
		zap.String("backend", w.backend),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("action", action),
	}, extra...)
	w.logger.Info("audit", fields...)
	return nil
}

var _ secondary.LogWriter = (*LogWriterAdapter)(nil)
