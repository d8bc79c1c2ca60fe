package service

import (
	"context"

	"go.uber.org/zap"

	"session-auth/backend/internal/audit"
	"session-auth/backend/internal/platform/logger"
	"session-auth/backend/internal/telemetry"
)

// Observers are the best-effort side channels of the auth flows. Every field is optional.
type Observers struct {
	Audit   audit.AuditLogger
	Events  telemetry.EventEmitter
	Metrics *telemetry.AuthMetrics
	Log     *zap.Logger
}

func (o Observers) logger() *zap.Logger {
	return logger.OrNop(o.Log)
}

// succeeded counts a completed operation and audits it.
func (o Observers) succeeded(ctx context.Context, action, userID, sessionID string, meta map[string]string) {
	o.Metrics.Record(ctx, action, telemetry.OutcomeSuccess)
	o.audited(ctx, action, userID, sessionID, meta)
}

// audited writes the audit entry and emits the telemetry event. Audit actions
// and telemetry event types share their names.
func (o Observers) audited(ctx context.Context, action, userID, sessionID string, meta map[string]string) {
	if o.Audit != nil {
		o.Audit.LogEvent(ctx, action, userID, sessionID, metadataString(meta))
	}
	ev := telemetry.NewEvent(action, userID, sessionID)
	ev.Metadata = meta
	telemetry.EmitAsync(o.Events, o.logger(), ev)
}

// failed counts a rejected operation.
func (o Observers) failed(ctx context.Context, action string) {
	o.Metrics.Record(ctx, action, telemetry.OutcomeFailure)
}

func metadataString(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	ev := telemetry.Event{Metadata: meta}
	return string(ev.MetadataJSON())
}
