package credcore

import (
	"context"
	"errors"
)

const (
	auditEventRegistered           = "account_registered"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginChallenge       = "login_second_factor_required"
	auditEventAccountLocked        = "account_locked"
	auditEventAccountUnlocked      = "account_unlocked"
	auditEventSecondFactorSuccess  = "second_factor_success"
	auditEventSecondFactorFailure  = "second_factor_failure"
	auditEventEnrollmentStarted    = "second_factor_enrollment_started"
	auditEventSecondFactorEnabled  = "second_factor_enabled"
	auditEventSecondFactorDisabled = "second_factor_disabled"
	auditEventDeviceTrusted        = "device_trusted"
	auditEventDeviceRemoved        = "device_removed"
	auditEventDevicesCleared       = "devices_cleared"
	auditEventEmailCodeIssued      = "email_verification_issued"
	auditEventEmailVerified        = "email_verified"
	auditEventResetRequested       = "password_reset_requested"
	auditEventPasswordReset        = "password_reset"
	auditEventPasswordChanged      = "password_changed"
	auditEventExternalLogin        = "external_login"
	auditEventRateLimited          = "rate_limited"
	auditEventNotificationFailed   = "notification_failed"
)

// AuditErrorCode is the stable, non-sensitive error label put on events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrSecondFactor       AuditErrorCode = "second_factor_invalid"
	auditErrNotConfigured      AuditErrorCode = "second_factor_not_configured"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrDeviceNotFound     AuditErrorCode = "device_not_found"
	auditErrPolicy             AuditErrorCode = "password_policy"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenNotYetValid),
		errors.Is(err, ErrTokenScope):
		return auditErrTokenInvalid
	case errors.Is(err, ErrSecondFactorInvalid):
		return auditErrSecondFactor
	case errors.Is(err, ErrSecondFactorNotConfigured):
		return auditErrNotConfigured
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrDeviceNotFound):
		return auditErrDeviceNotFound
	case errors.Is(err, ErrWeakPassword):
		return auditErrPolicy
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
