package credcore

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// ListDevices returns the live trusted devices, oldest first. Expired
// entries are left in storage and skipped.
func (e *Engine) ListDevices(ctx context.Context, accountID string) ([]TrustedDevice, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.passOrFault("list devices", err, zap.String("account_id", accountID))
	}
	return activeDevices(acct, e.clock.Now()), nil
}

// RemoveDevice revokes one device. An unknown or already expired id
// returns ErrDeviceNotFound.
func (e *Engine) RemoveDevice(ctx context.Context, accountID, deviceID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.clock.Now()
	_, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		if err := removeTrustedDevice(a, deviceID, now); err != nil {
			return err
		}
		purgeExpiredDevices(a, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.passOrFault("remove device", err, zap.String("account_id", accountID))
	}

	e.metricInc(MetricDeviceRemoved)
	e.emitAudit(ctx, auditEventDeviceRemoved, true, accountID, nil, func() map[string]string {
		return map[string]string{"device_id": deviceID}
	})
	return nil
}

// ClearDevices revokes every device. Clearing an empty list succeeds.
func (e *Engine) ClearDevices(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.clock.Now()
	var removed int
	_, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		removed = len(activeDevices(a, now))
		a.TrustedDevices = nil
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.passOrFault("clear devices", err, zap.String("account_id", accountID))
	}

	if removed > 0 {
		e.metricInc(MetricDevicesCleared)
	}
	e.emitAudit(ctx, auditEventDevicesCleared, true, accountID, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(removed)}
	})
	return nil
}
