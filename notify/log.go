package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
)

// Log writes every notification, code included, to a zap logger. It is
// meant for local development only.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Send(_ context.Context, destination string, kind credcore.NotificationKind, payload map[string]string) error {
	fields := make([]zap.Field, 0, len(payload)+2)
	fields = append(fields, zap.String("to", destination), zap.String("kind", string(kind)))
	for k, v := range payload {
		fields = append(fields, zap.String(k, v))
	}
	l.log.Info("notification", fields...)
	return nil
}

var _ credcore.Notifier = (*Log)(nil)
