package credcore

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

func deviceActive(d TrustedDevice, now time.Time) bool {
	return now.Before(d.ExpiresAt)
}

// trustedDevice returns the live entry for fingerprint. Expired entries are
// skipped even while they are still stored.
func trustedDevice(a *Account, fingerprint string, now time.Time) (TrustedDevice, bool) {
	if fingerprint == "" {
		return TrustedDevice{}, false
	}
	for _, d := range a.TrustedDevices {
		if d.Fingerprint == fingerprint && deviceActive(d, now) {
			return d, true
		}
	}
	return TrustedDevice{}, false
}

func activeDevices(a *Account, now time.Time) []TrustedDevice {
	out := make([]TrustedDevice, 0, len(a.TrustedDevices))
	for _, d := range a.TrustedDevices {
		if deviceActive(d, now) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(x, y TrustedDevice) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return out
}

// purgeExpiredDevices drops lapsed entries and returns how many went.
func purgeExpiredDevices(a *Account, now time.Time) int {
	before := len(a.TrustedDevices)
	a.TrustedDevices = slices.DeleteFunc(a.TrustedDevices, func(d TrustedDevice) bool {
		return !deviceActive(d, now)
	})
	if len(a.TrustedDevices) == 0 {
		a.TrustedDevices = nil
	}
	return before - len(a.TrustedDevices)
}

// removeTrustedDevice deletes by id. An expired entry counts as absent.
func removeTrustedDevice(a *Account, id string, now time.Time) error {
	i := slices.IndexFunc(a.TrustedDevices, func(d TrustedDevice) bool {
		return d.ID == id
	})
	if i < 0 || !deviceActive(a.TrustedDevices[i], now) {
		return ErrDeviceNotFound
	}
	a.TrustedDevices = slices.Delete(a.TrustedDevices, i, i+1)
	return nil
}

func clampLabel(label string, max int) string {
	label = strings.TrimSpace(label)
	if max <= 0 || utf8.RuneCountInString(label) <= max {
		return label
	}
	runes := []rune(label)
	return string(runes[:max])
}
