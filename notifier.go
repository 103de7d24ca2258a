package credcore

import (
	"context"

	"go.uber.org/zap"
)

// NotificationKind tells a Notifier which template to render.
type NotificationKind string

const (
	NotifyEmailVerification   NotificationKind = "email_verification"
	NotifyPasswordReset       NotificationKind = "password_reset"
	NotifyResetUnknownAccount NotificationKind = "password_reset_unknown_account"
	NotifyPasswordChanged     NotificationKind = "password_changed"
)

// Payload keys passed with notifications.
const (
	PayloadCode        = "code"
	PayloadExpiresAt   = "expires_at"
	PayloadDisplayName = "display_name"
)

// Notifier delivers out-of-band messages. A returned error never rolls back
// the state change that triggered the send.
type Notifier interface {
	Send(ctx context.Context, destination string, kind NotificationKind, payload map[string]string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, destination string, kind NotificationKind, payload map[string]string) error

func (f NotifierFunc) Send(ctx context.Context, destination string, kind NotificationKind, payload map[string]string) error {
	return f(ctx, destination, kind, payload)
}

type discardNotifier struct {
	log *zap.Logger
}

func (n discardNotifier) Send(_ context.Context, _ string, kind NotificationKind, _ map[string]string) error {
	n.log.Debug("no notifier configured, dropping notification", zap.String("kind", string(kind)))
	return nil
}

// notify sends and converts a failure into ErrDeliveryFailed after logging
// and counting it.
func (e *Engine) notify(ctx context.Context, accountID, destination string, kind NotificationKind, payload map[string]string) error {
	err := e.notifier.Send(writeContext(ctx), destination, kind, payload)
	if err == nil {
		return nil
	}

	e.log.Warn("notification failed",
		zap.String("kind", string(kind)),
		zap.String("account_id", accountID),
		zap.Error(err),
	)
	e.metricInc(MetricNotifierFailure)
	e.emitAudit(ctx, auditEventNotificationFailed, false, accountID, err, func() map[string]string {
		return map[string]string{"kind": string(kind)}
	})
	return ErrDeliveryFailed
}
