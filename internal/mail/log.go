package mail

import (
	"context"

	"go.uber.org/zap"

	"session-auth/backend/internal/platform/logger"
)

// LogSender logs the recipient and subject instead of sending. For development only:
// the body, which may carry a generated password, is never logged.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a sender writing to log.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: logger.OrNop(log)}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("mail: not sent (log provider)", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
