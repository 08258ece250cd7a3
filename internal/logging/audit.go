package logging

import (
	"bloodsync/internal/core"
	"context"

	"go.uber.org/zap"
)

// AuditLogger records audit entries as structured log lines.
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger writes audit entries to logger under the "audit" name.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

// Record implements core.AuditRecorder.
func (a *AuditLogger) Record(_ context.Context, entry core.AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("entity", string(entry.Entity)),
		zap.String("action", string(entry.Action)),
		zap.String("entity_id", entry.EntityID),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration),
		zap.Time("at", entry.Timestamp),
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}
	a.logger.Info("audit", fields...)
}
