package credcore

import "time"

// recordFailure counts one failed credential check and reports whether it
// crossed the threshold. A lock that has already lapsed is forgotten first,
// so the count restarts at one.
func recordFailure(a *Account, cfg LockoutConfig, now time.Time) bool {
	if !a.LockedUntil.IsZero() && !a.LockedUntil.After(now) {
		a.FailedAttempts = 0
		a.LockedUntil = time.Time{}
	}

	a.FailedAttempts++
	if a.FailedAttempts >= cfg.Threshold && a.LockedUntil.IsZero() {
		a.LockedUntil = now.Add(cfg.Duration)
		return true
	}
	return false
}

func clearFailures(a *Account) {
	a.FailedAttempts = 0
	a.LockedUntil = time.Time{}
}
